package embedding

import (
	"fmt"

	"github.com/hyperjump/kagami/internal/config"
)

// Provider names accepted by New.
const (
	ProviderONNX = "onnx"
	ProviderMock = "mock"
)

// New creates the embedder selected by cfg.Provider ("onnx" by default).
// Model loading happens here; wrap the call in NewLazy to defer it to first use.
func New(cfg *config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case ProviderONNX, "":
		e, err := NewONNXEmbedder(ONNXOptions{
			LibraryPath:    cfg.OnnxLibraryPath,
			ImageModelPath: cfg.ImageModelPath,
			TextModelPath:  cfg.TextModelPath,
			Dimensions:     cfg.Dimensions,
			ImageSize:      cfg.ImageSize,
			ContextLength:  cfg.ContextLength,
			CacheSize:      cfg.CacheSize,
			VocabPath:      cfg.TokenizerVocabPath,
			MergesPath:     cfg.TokenizerMergesPath,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, mock)", cfg.Provider)
	}
}
