package vectorstore

import "errors"

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vector store configuration")

	// ErrDimensionMismatch indicates an embedding whose dimensionality
	// matches none of the configured vector slots. This is fatal for the
	// request; the embedding is never truncated or padded to fit.
	ErrDimensionMismatch = errors.New("embedding dimension matches no configured vector slot")

	// ErrConnectionFailed indicates the Qdrant connection could not be established.
	ErrConnectionFailed = errors.New("qdrant connection failed")

	// ErrSearchFailed indicates a similarity search failure.
	ErrSearchFailed = errors.New("vector search failed")
)
