package detector

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SubprocessProvider implements Provider using a helper process that prints
// one JSON frame per line on stdout. The process is started lazily on the
// first call to Next.
type SubprocessProvider struct {
	config  Config
	log     zerolog.Logger
	mu      sync.Mutex
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	frames  chan Frame
	errc    chan error
	done    chan struct{}
	started bool
}

// NewSubprocessProvider creates a provider for the configured command. When
// config.Command is empty the bundled landmark_service.py script is used.
func NewSubprocessProvider(config Config, log zerolog.Logger) (*SubprocessProvider, error) {
	if len(config.Command) == 0 {
		script := findLandmarkScript()
		if script == "" {
			return nil, fmt.Errorf("landmark_service.py not found")
		}
		python := findVenvPython()
		if python == "" {
			python = "python3"
		}
		config.Command = []string{python, script}
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultConfig().Buffer
	}

	return &SubprocessProvider{
		config: config,
		log:    log,
	}, nil
}

// Next returns the next frame printed by the helper process.
func (p *SubprocessProvider) Next(ctx context.Context) (Frame, error) {
	p.mu.Lock()
	if err := p.ensureStarted(); err != nil {
		p.mu.Unlock()
		return Frame{}, err
	}
	frames, errc := p.frames, p.errc
	p.mu.Unlock()

	select {
	case f, ok := <-frames:
		if !ok {
			select {
			case err := <-errc:
				return Frame{}, err
			default:
				return Frame{}, io.EOF
			}
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close shuts down the helper process.
func (p *SubprocessProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown()
}

func (p *SubprocessProvider) ensureStarted() error {
	if p.started {
		return nil
	}

	cmd := exec.Command(p.config.Command[0], p.config.Command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start landmark service: %w", err)
	}

	p.cmd = cmd
	p.stdout = stdout
	p.frames = make(chan Frame, p.config.Buffer)
	p.errc = make(chan error, 1)
	p.done = make(chan struct{})
	p.started = true

	go p.read(stdout, p.frames, p.errc, p.done)

	p.log.Info().Strs("command", p.config.Command).Msg("landmark service started")
	return nil
}

// read decodes frames until the pipe closes. Malformed lines are skipped.
func (p *SubprocessProvider) read(r io.Reader, frames chan<- Frame, errc chan<- error, done <-chan struct{}) {
	defer close(frames)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		frame, err := DecodeFrame(scanner.Bytes(), p.config)
		if err != nil {
			p.log.Debug().Err(err).Msg("skip malformed landmark line")
			continue
		}
		select {
		case frames <- frame:
		case <-done:
			return
		}
	}

	if err := scanner.Err(); err != nil && !p.stopping(done) {
		errc <- fmt.Errorf("read landmarks: %w", err)
	}
}

func (p *SubprocessProvider) shutdown() error {
	if !p.started {
		return nil
	}

	close(p.done)
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()

	p.started = false
	p.cmd = nil
	p.stdout = nil

	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return nil
		}
	}
	return err
}

func (p *SubprocessProvider) stopping(done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func findLandmarkScript() string {
	// Get executable directory
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/landmark_service.py",
		"../scripts/landmark_service.py",
		filepath.Join(execDir, "scripts/landmark_service.py"),
		filepath.Join(os.Getenv("HOME"), ".biotwin/scripts/landmark_service.py"),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".biotwin/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonFrame is the line format printed by the landmark service.
type jsonFrame struct {
	Hands []JSONHand `json:"hands"`
	// Timestamp is milliseconds since the Unix epoch; zero means now.
	Timestamp int64 `json:"timestamp"`
}

// JSONHand is the wire form of one hand. Points is a plain list so that
// short or malformed hands can be detected.
type JSONHand struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"`
	Score      float64   `json:"score"`
}

// ToHandLandmarks converts the wire form, failing with ErrShortHand.
func (h JSONHand) ToHandLandmarks() (HandLandmarks, error) {
	lm, err := FromPoints(h.Points)
	if err != nil {
		return lm, err
	}
	lm.Handedness = h.Handedness
	lm.Score = h.Score
	return lm, nil
}

// DecodeHands converts wire hands, dropping malformed ones.
func DecodeHands(hands []JSONHand, config Config) []HandLandmarks {
	out := make([]HandLandmarks, 0, len(hands))
	for _, h := range hands {
		lm, err := h.ToHandLandmarks()
		if err != nil {
			continue
		}
		out = append(out, lm)
	}
	return config.filter(out)
}

// DecodeFrame parses one JSON landmark message of the form
// {"hands":[...],"timestamp":ms}.
func DecodeFrame(data []byte, config Config) (Frame, error) {
	var msg jsonFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		return Frame{}, fmt.Errorf("decode landmarks: %w", err)
	}
	return msg.toFrame(config), nil
}

func (f jsonFrame) toFrame(config Config) Frame {
	ts := time.Now()
	if f.Timestamp > 0 {
		ts = time.UnixMilli(f.Timestamp)
	}
	return Frame{Hands: DecodeHands(f.Hands, config), Timestamp: ts}
}
