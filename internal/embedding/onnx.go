//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder runs CLIP visual and textual encoders with ONNX Runtime. It requires
// CGO and the onnxruntime shared library. Each encoder owns preallocated tensors
// that are rewritten in place for every Run, so calls are serialized per encoder.
type ONNXEmbedder struct {
	dimensions    int
	imageSize     int
	contextLength int
	cache         *EmbeddingCache
	tokenizer     Tokenizer

	imageSession *ort.AdvancedSession
	pixelTensor  *ort.Tensor[float32]
	imageOutput  *ort.Tensor[float32]
	imageMu      sync.Mutex

	textSession    *ort.AdvancedSession
	inputIDsTensor *ort.Tensor[int64]
	attnMaskTensor *ort.Tensor[int64]
	textOutput     *ort.Tensor[float32]
	textMu         sync.Mutex
}

// NewONNXEmbedder loads both encoders. InitializeEnvironment is called if not already done.
func NewONNXEmbedder(opts ONNXOptions) (*ONNXEmbedder, error) {
	if opts.Dimensions <= 0 || opts.ImageSize <= 0 || opts.ContextLength <= 0 {
		return nil, errors.New("onnx embedder: dimensions, image size and context length must be positive")
	}
	if !ort.IsInitialized() {
		if opts.LibraryPath != "" {
			ort.SetSharedLibraryPath(opts.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	tokenizer, err := NewTokenizer(opts.VocabPath, opts.MergesPath)
	if err != nil {
		return nil, err
	}
	e := &ONNXEmbedder{
		dimensions:    opts.Dimensions,
		imageSize:     opts.ImageSize,
		contextLength: opts.ContextLength,
		cache:         NewEmbeddingCache(opts.CacheSize),
		tokenizer:     tokenizer,
	}
	if err := e.initImageSession(opts.ImageModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.initTextSession(opts.TextModelPath); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *ONNXEmbedder) initImageSession(modelPath string) error {
	var err error
	size := int64(e.imageSize)
	e.pixelTensor, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("failed to create pixel_values tensor: %w", err)
	}
	e.imageOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create image output tensor: %w", err)
	}
	e.imageSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"pixel_values"},
		[]string{"image_embeds"},
		[]ort.ArbitraryTensor{e.pixelTensor},
		[]ort.ArbitraryTensor{e.imageOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create image ONNX session from %s: %w", modelPath, err)
	}
	return nil
}

func (e *ONNXEmbedder) initTextSession(modelPath string) error {
	var err error
	shape := ort.NewShape(1, int64(e.contextLength))
	e.inputIDsTensor, err = ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	e.attnMaskTensor, err = ort.NewEmptyTensor[int64](shape)
	if err != nil {
		return fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	e.textOutput, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.dimensions)))
	if err != nil {
		return fmt.Errorf("failed to create text output tensor: %w", err)
	}
	e.textSession, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"text_embeds"},
		[]ort.ArbitraryTensor{e.inputIDsTensor, e.attnMaskTensor},
		[]ort.ArbitraryTensor{e.textOutput},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to create text ONNX session from %s: %w", modelPath, err)
	}
	return nil
}

// EmbedImage decodes and preprocesses the image at path and runs the visual encoder.
func (e *ONNXEmbedder) EmbedImage(ctx context.Context, path string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	pixels, err := Preprocess(img, e.imageSize)
	if err != nil {
		return nil, err
	}

	e.imageMu.Lock()
	defer e.imageMu.Unlock()
	copy(e.pixelTensor.GetData(), pixels)
	if err := e.imageSession.Run(); err != nil {
		return nil, fmt.Errorf("image inference failed: %w", err)
	}
	embedding := make([]float32, e.dimensions)
	copy(embedding, e.imageOutput.GetData()[:e.dimensions])
	return embedding, nil
}

// EmbedText returns the text encoder embedding for text, using cache when available.
func (e *ONNXEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	inputIDs, attentionMask := e.tokenizer.Tokenize(text, e.contextLength)

	e.textMu.Lock()
	defer e.textMu.Unlock()
	copy(e.inputIDsTensor.GetData(), inputIDs)
	copy(e.attnMaskTensor.GetData(), attentionMask)
	if err := e.textSession.Run(); err != nil {
		return nil, fmt.Errorf("text inference failed: %w", err)
	}
	embedding := make([]float32, e.dimensions)
	copy(embedding, e.textOutput.GetData()[:e.dimensions])
	e.cache.Set(text, embedding)
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the sessions and tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.imageSession != nil {
		err = e.imageSession.Destroy()
		e.imageSession = nil
	}
	if e.textSession != nil {
		if textErr := e.textSession.Destroy(); err == nil {
			err = textErr
		}
		e.textSession = nil
	}
	for _, t := range []interface{ Destroy() error }{e.pixelTensor, e.imageOutput, e.inputIDsTensor, e.attnMaskTensor, e.textOutput} {
		if t != nil {
			_ = t.Destroy()
		}
	}
	e.pixelTensor, e.imageOutput, e.inputIDsTensor, e.attnMaskTensor, e.textOutput = nil, nil, nil, nil, nil
	return err
}
