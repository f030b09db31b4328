// Package embeddings provides embedding generation via an HTTP
// embedding service (TEI-compatible).
//
// Dimensionality is never assumed from configuration: every Embedding
// carries the dimension observed in the service response, and the
// vector store resolves its slot from that value.
package embeddings
