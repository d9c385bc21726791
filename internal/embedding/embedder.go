// Package embedding provides image and text embedding in a shared vector space.
package embedding

import "context"

// Embedder produces vector embeddings for images and text. Both methods return
// vectors of Dimensions() components in the same space, so an image vector and a
// text vector can be compared directly by cosine similarity.
type Embedder interface {
	// EmbedImage decodes the image file at path and embeds it.
	EmbedImage(ctx context.Context, path string) ([]float32, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}
