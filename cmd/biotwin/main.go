// Command biotwin serves gesture-driven cell segmentation to a browser
// renderer.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/biotwin/internal/app"
	"github.com/ayusman/biotwin/internal/detector"
	"github.com/ayusman/biotwin/internal/gesture"
	"github.com/ayusman/biotwin/internal/inference"
	"github.com/ayusman/biotwin/internal/logging"
	"github.com/ayusman/biotwin/internal/segment"
	"github.com/ayusman/biotwin/internal/server"
	"github.com/ayusman/biotwin/internal/store"
)

const (
	flagAddr         = "addr"
	flagDB           = "db"
	flagWeb          = "web"
	flagLogLevel     = "log-level"
	flagONNXLib      = "onnx-lib"
	flagEncoder      = "encoder"
	flagDecoder      = "decoder"
	flagMirror       = "mirror"
	flagRotationMode = "rotation-mode"
	flagLandmarks    = "landmarks"
	flagLandmarkCmd  = "landmark-command"
	flagImage        = "image"
	flagX            = "x"
	flagY            = "y"
	flagLimit        = "limit"

	landmarksWebSocket  = "websocket"
	landmarksSubprocess = "subprocess"
)

func main() {
	cliApp := &cli.App{
		Name:  "biotwin",
		Usage: "gesture control and mask-to-geometry for cell images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  flagDB,
				Value: defaultDBPath(),
				Usage: "SQLite database `FILE`",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and WebSocket server",
				Flags:  append(modelFlags(), serveFlags()...),
				Action: serveAction,
			},
			{
				Name:   "segment",
				Usage:  "segment one image at a point and print the geometry as JSON",
				Flags:  append(modelFlags(), segmentFlags()...),
				Action: segmentAction,
			},
			{
				Name:  "scenes",
				Usage: "list saved scenes",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: flagLimit, Value: 20, Usage: "maximum number of scenes"},
				},
				Action: scenesAction,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "biotwin:", err)
		os.Exit(1)
	}
}

func modelFlags() []cli.Flag {
	defaults := inference.DefaultONNXConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagONNXLib,
			Value:   defaults.LibraryPath,
			EnvVars: []string{"ONNXRUNTIME_LIB"},
			Usage:   "path to the ONNX Runtime shared library",
		},
		&cli.StringFlag{Name: flagEncoder, Value: defaults.EncoderPath, Usage: "SAM encoder model `FILE`"},
		&cli.StringFlag{Name: flagDecoder, Value: defaults.DecoderPath, Usage: "SAM decoder model `FILE`"},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagAddr, Value: ":8080", Usage: "listen address"},
		&cli.StringFlag{Name: flagWeb, Usage: "static web `DIR` (searched when empty)"},
		&cli.BoolFlag{Name: flagMirror, Value: true, Usage: "mirror the cursor for a selfie camera"},
		&cli.StringFlag{Name: flagRotationMode, Value: string(gesture.RotationAngle), Usage: "grab rotation mode (angle, cursor)"},
		&cli.StringFlag{
			Name:  flagLandmarks,
			Value: landmarksWebSocket,
			Usage: "landmark source (websocket, subprocess)",
		},
		&cli.StringSliceFlag{Name: flagLandmarkCmd, Usage: "helper command for the subprocess landmark source"},
	}
}

func segmentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: flagImage, Required: true, Usage: "image `FILE`"},
		&cli.Float64Flag{Name: flagX, Value: 0.5, Usage: "normalized x of the prompt point"},
		&cli.Float64Flag{Name: flagY, Value: 0.5, Usage: "normalized y of the prompt point"},
	}
}

func newLogger(c *cli.Context) zerolog.Logger {
	return logging.NewConsole(logging.ParseLevel(c.String(flagLogLevel)))
}

func openStore(c *cli.Context) (*store.Store, error) {
	dbPath := c.String(flagDB)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	return st, nil
}

func newPipeline(c *cli.Context, log zerolog.Logger) *segment.Pipeline {
	onnx := inference.DefaultONNXConfig()
	onnx.LibraryPath = c.String(flagONNXLib)
	onnx.EncoderPath = c.String(flagEncoder)
	onnx.DecoderPath = c.String(flagDecoder)

	sessions := inference.NewSessionManager(inference.ONNXLoader(onnx, logging.Component(log, "onnx")))
	worker := inference.NewWorker(sessions, inference.DefaultWorkerConfig(), logging.Component(log, "worker"))
	return segment.NewPipeline(worker, segment.DefaultConfig(), logging.Component(log, "segment"))
}

func serveAction(c *cli.Context) error {
	log := newLogger(c)

	mode, err := gesture.ParseRotationMode(c.String(flagRotationMode))
	if err != nil {
		return err
	}

	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	pipeline := newPipeline(c, log)

	gestureConfig := gesture.DefaultConfig()
	gestureConfig.Mode = mode

	a := app.New(app.Config{
		Store:    st,
		Pipeline: pipeline,
		Gesture:  gestureConfig,
		Mirror:   c.Bool(flagMirror),
		Log:      logging.Component(log, "app"),
	})
	if err := a.LoadSettings(); err != nil {
		return err
	}

	detectorConfig := detector.DefaultConfig()
	detectorConfig.Command = c.StringSlice(flagLandmarkCmd)

	var provider detector.Provider
	var landmarks *detector.ChannelProvider
	switch c.String(flagLandmarks) {
	case landmarksWebSocket:
		landmarks = detector.NewChannelProvider(detectorConfig.Buffer)
		provider = landmarks
	case landmarksSubprocess:
		sp, err := detector.NewSubprocessProvider(detectorConfig, logging.Component(log, "landmarks"))
		if err != nil {
			return err
		}
		provider = sp
	default:
		return fmt.Errorf("unknown landmark source %q", c.String(flagLandmarks))
	}
	defer provider.Close()

	webDir := c.String(flagWeb)
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Info().Str("dir", webDir).Msg("serving static files")
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
		Landmarks: landmarks,
		Detector:  detectorConfig,
		Log:       logging.Component(log, "server"),
	})
	httpServer := &http.Server{Addr: c.String(flagAddr), Handler: srv}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(pipeline.Run(ctx)) })
	g.Go(func() error { return ignoreCanceled(a.ConsumeResults(ctx)) })
	g.Go(func() error { return ignoreCanceled(a.Run(ctx, provider)) })
	g.Go(func() error {
		if err := pipeline.LoadModels(ctx); err != nil {
			log.Warn().Err(err).Msg("model load not queued")
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func segmentAction(c *cli.Context) error {
	log := newLogger(c)

	data, err := os.ReadFile(c.String(flagImage))
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	pipeline := newPipeline(c, log)
	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx) }()

	if _, err := pipeline.LoadImage(ctx, data); err != nil {
		return err
	}
	res, err := pipeline.Segment(ctx, c.Float64(flagX), c.Float64(flagY))
	if err != nil {
		return err
	}
	if res.Err != nil {
		return res.Err
	}

	cancel()
	<-done

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func scenesAction(c *cli.Context) error {
	st, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	scenes, err := st.Scenes().List(c.Int(flagLimit))
	if err != nil {
		return fmt.Errorf("list scenes: %w", err)
	}
	for _, sc := range scenes {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t(%.3f, %.3f)\t%d shapes\t%d particles\n",
			sc.ID, sc.CreatedAt.Format(time.RFC3339), sc.ImageName, sc.PointX, sc.PointY, len(sc.Shapes), sc.ParticleCount)
	}
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func defaultDBPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "biotwin.db"
	}
	return filepath.Join(homeDir, ".biotwin", "biotwin.db")
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.biotwin/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".biotwin", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
