// Package vectorstore wraps the Qdrant gRPC client behind a named-slot
// aware search adapter.
//
// The collection carries one named vector slot per supported embedding
// dimensionality (for example dim768, dim1024). Callers hand over an
// embedding together with its observed dimension; the adapter resolves
// the matching slot and fails hard with ErrDimensionMismatch when no
// slot matches. There is no truncation or padding.
//
// Two search modes are exposed. Hybrid search extracts structured hints
// (article and note numbers) from the query text and boosts candidates
// whose metadata matches before final ordering. Plain search is pure
// vector similarity with a lower score threshold and is used when the
// query carries no metadata hints.
package vectorstore
