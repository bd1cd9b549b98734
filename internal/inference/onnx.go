package inference

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/ayusman/biotwin/internal/mask"
)

// Tensor names of the exported SAM encoder and decoder graphs.
var (
	encoderInputs  = []string{"input_image"}
	encoderOutputs = []string{"image_embeddings"}
	decoderInputs  = []string{
		"image_embeddings",
		"point_coords",
		"point_labels",
		"mask_input",
		"has_mask_input",
		"orig_im_size",
	}
	decoderOutputs = []string{"masks"}
)

// ONNXConfig locates the runtime library and the two model files.
type ONNXConfig struct {
	LibraryPath  string
	EncoderPath  string
	DecoderPath  string
	IntraThreads int
	InterThreads int
}

// DefaultONNXConfig returns the default file locations.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		LibraryPath:  os.Getenv("ONNXRUNTIME_LIB"),
		EncoderPath:  "models/sam_encoder.onnx",
		DecoderPath:  "models/sam_decoder.onnx",
		IntraThreads: 4,
		InterThreads: 2,
	}
}

var ortInit sync.Mutex

// initEnvironment initializes the process-wide ONNX Runtime environment once.
func initEnvironment(libPath string) error {
	ortInit.Lock()
	defer ortInit.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		if _, err := os.Stat(libPath); err != nil {
			return errors.Wrapf(err, "ONNX Runtime library not found at %s", libPath)
		}
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// ONNXBackend runs the SAM encoder and decoder with ONNX Runtime.
type ONNXBackend struct {
	encoder *ort.DynamicAdvancedSession
	decoder *ort.DynamicAdvancedSession
	log     zerolog.Logger
}

// NewONNXBackend loads both models.
func NewONNXBackend(config ONNXConfig, log zerolog.Logger) (*ONNXBackend, error) {
	if err := initEnvironment(config.LibraryPath); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if config.IntraThreads > 0 {
		options.SetIntraOpNumThreads(config.IntraThreads)
	}
	if config.InterThreads > 0 {
		options.SetInterOpNumThreads(config.InterThreads)
	}
	options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended)

	encoder, err := ort.NewDynamicAdvancedSession(config.EncoderPath, encoderInputs, encoderOutputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "error loading encoder %s", config.EncoderPath)
	}

	decoder, err := ort.NewDynamicAdvancedSession(config.DecoderPath, decoderInputs, decoderOutputs, options)
	if err != nil {
		encoder.Destroy()
		return nil, errors.Wrapf(err, "error loading decoder %s", config.DecoderPath)
	}

	log.Info().
		Str("encoder", config.EncoderPath).
		Str("decoder", config.DecoderPath).
		Msg("segmentation models loaded")

	return &ONNXBackend{encoder: encoder, decoder: decoder, log: log}, nil
}

// onnxEmbedding owns the encoder output tensor.
type onnxEmbedding struct {
	value ort.Value
}

func (e *onnxEmbedding) Close() error {
	if e.value == nil {
		return nil
	}
	err := e.value.Destroy()
	e.value = nil
	return err
}

// Encode runs the encoder on a tensor. The input is transposed to CHW.
func (b *ONNXBackend) Encode(ctx context.Context, tensor *PixelTensor) (Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tensor == nil {
		return nil, errors.New("nil pixel tensor")
	}

	input, err := ort.NewTensor(ort.NewShape(3, int64(tensor.Height), int64(tensor.Width)), tensor.CHW())
	if err != nil {
		return nil, errors.Wrap(err, "error creating encoder input")
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	if err := b.encoder.Run([]ort.Value{input}, outputs); err != nil {
		return nil, errors.Wrap(err, "encoder run failed")
	}

	b.log.Debug().Ints64("shape", outputs[0].GetShape()).Msg("image encoded")
	return &onnxEmbedding{value: outputs[0]}, nil
}

// Decode runs the decoder for a single positive point prompt and returns the
// first mask channel.
func (b *ONNXBackend) Decode(ctx context.Context, embedding Embedding, point Point) (*mask.Mask, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb, ok := embedding.(*onnxEmbedding)
	if !ok || emb.value == nil {
		return nil, errors.New("embedding was not produced by this backend")
	}

	x, y := point.Scaled()

	feeds := make([]ort.Value, 0, len(decoderInputs))
	defer func() {
		// The embedding is owned by the caller.
		for _, v := range feeds[1:] {
			v.Destroy()
		}
	}()
	feeds = append(feeds, emb.value)

	add := func(shape ort.Shape, data []float32) error {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return err
		}
		feeds = append(feeds, t)
		return nil
	}

	if err := add(ort.NewShape(1, 1, 2), []float32{x, y}); err != nil {
		return nil, errors.Wrap(err, "error creating point_coords")
	}
	if err := add(ort.NewShape(1, 1), []float32{1}); err != nil {
		return nil, errors.Wrap(err, "error creating point_labels")
	}
	if err := add(ort.NewShape(1, 1, MaskInputSize, MaskInputSize), make([]float32, MaskInputSize*MaskInputSize)); err != nil {
		return nil, errors.Wrap(err, "error creating mask_input")
	}
	if err := add(ort.NewShape(1), []float32{0}); err != nil {
		return nil, errors.Wrap(err, "error creating has_mask_input")
	}
	if err := add(ort.NewShape(2), []float32{InputSize, InputSize}); err != nil {
		return nil, errors.Wrap(err, "error creating orig_im_size")
	}

	outputs := []ort.Value{nil}
	if err := b.decoder.Run(feeds, outputs); err != nil {
		return nil, errors.Wrap(err, "decoder run failed")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("decoder output is not a float32 tensor")
	}

	shape := out.GetShape()
	if len(shape) < 2 {
		return nil, errors.Errorf("unexpected mask shape %v", shape)
	}
	h, w := int(shape[len(shape)-2]), int(shape[len(shape)-1])

	// Copy the first channel out of runtime-owned memory.
	m, err := mask.FromData(w, h, append([]float32(nil), out.GetData()[:w*h]...))
	if err != nil {
		return nil, errors.Wrap(err, "invalid decoder mask")
	}
	return m, nil
}

// Close releases both sessions.
func (b *ONNXBackend) Close() error {
	var first error
	if b.encoder != nil {
		first = b.encoder.Destroy()
		b.encoder = nil
	}
	if b.decoder != nil {
		if err := b.decoder.Destroy(); err != nil && first == nil {
			first = err
		}
		b.decoder = nil
	}
	return first
}

// ONNXLoader returns a Loader that builds an ONNXBackend.
func ONNXLoader(config ONNXConfig, log zerolog.Logger) Loader {
	return func(ctx context.Context) (Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewONNXBackend(config, log)
	}
}
