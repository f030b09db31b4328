package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yektalaw/pasokhd/internal/config"
	"github.com/yektalaw/pasokhd/internal/embeddings"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("pasokhd.vectorstore.qdrant")

// Config holds configuration for the Qdrant-backed store.
type Config struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334, not the HTTP REST port).
	Port int

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// APIKey authenticates against hosted Qdrant. Optional.
	APIKey config.Secret

	// Collection is the logical collection holding all passages.
	Collection string

	// Slots maps named vector slots to dimensionalities. Each supported
	// embedding size gets exactly one slot.
	Slots SlotSet

	// ScoreThreshold is the minimum similarity score in hybrid mode.
	ScoreThreshold float32

	// PlainThreshold is the lower minimum score used for pure vector
	// similarity when the query carries no metadata hints.
	PlainThreshold float32

	// MetadataBoost is added to a candidate's score per matching hint.
	MetadataBoost float32

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration

	// SearchTimeout bounds one HybridSearch call including retries.
	SearchTimeout time.Duration
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if len(c.Slots) == 0 {
		return fmt.Errorf("%w: at least one vector slot required", ErrInvalidConfig)
	}
	seen := make(map[uint64]string, len(c.Slots))
	for name, dim := range c.Slots {
		if other, ok := seen[dim]; ok {
			return fmt.Errorf("%w: slots %q and %q share dimensionality %d", ErrInvalidConfig, other, name, dim)
		}
		seen[dim] = name
	}
	return nil
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MetadataBoost == 0 {
		c.MetadataBoost = 0.15
	}
	if c.SearchTimeout == 0 {
		c.SearchTimeout = 10 * time.Second
	}
}

// Store is a Searcher backed by Qdrant's native gRPC client.
//
// One collection holds every passage; each point carries one named vector
// per supported dimensionality. Slot selection happens here, in the
// adapter, because the service itself does not auto-detect dimensions.
type Store struct {
	client *qdrant.Client
	config Config
}

// NewStore creates a Store and verifies connectivity.
func NewStore(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		APIKey: cfg.APIKey.Value(),
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(50 * 1024 * 1024),
				grpc.MaxCallSendMsgSize(50 * 1024 * 1024),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &Store{client: client, config: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// EnsureCollection creates the collection with one named vector per slot
// if it does not exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Store.EnsureCollection")
	defer span.End()

	exists, err := s.client.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}
	if exists {
		return nil
	}

	params := make(map[string]*qdrant.VectorParams, len(s.config.Slots))
	for name, dim := range s.config.Slots {
		params[name] = &qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig:  qdrant.NewVectorsConfigMap(params),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "created")
	return nil
}

// HybridSearch implements Searcher.
//
// The slot is resolved from the embedding's observed dimensionality before
// anything else; a mismatch aborts the request without touching the service.
// When the query text carries structured hints, candidates are oversampled,
// boosted on metadata matches, re-sorted, and truncated. Without hints the
// search degrades to pure similarity with the lower plain threshold.
func (s *Store) HybridSearch(ctx context.Context, emb embeddings.Embedding, queryText string, limit int, filters map[string]string) ([]Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.SearchTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "Store.HybridSearch")
	defer span.End()

	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrSearchFailed, limit)
	}

	slot, err := s.config.Slots.Resolve(emb.Dim)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dimension mismatch")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("slot", slot),
		attribute.Int("dim", emb.Dim),
		attribute.Int("limit", limit),
	)

	hints := ExtractHints(queryText)
	if hints.Empty() {
		span.SetAttributes(attribute.Bool("hybrid", false))
		return s.search(ctx, slot, emb.Vector, uint64(limit), s.config.PlainThreshold, filters)
	}
	span.SetAttributes(attribute.Bool("hybrid", true))

	// Oversample so boosting can promote candidates from beyond the
	// requested window.
	sampleLimit := uint64(limit * 3)
	candidates, err := s.search(ctx, slot, emb.Vector, sampleLimit, s.config.ScoreThreshold, filters)
	if err != nil {
		return nil, err
	}

	boosted := applyMetadataBoost(candidates, hints, s.config.MetadataBoost)
	if len(boosted) > limit {
		boosted = boosted[:limit]
	}
	return boosted, nil
}

// search runs one similarity query against the named slot.
func (s *Store) search(ctx context.Context, slot string, vector []float32, limit uint64, threshold float32, filters map[string]string) ([]Chunk, error) {
	var points []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		query := &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Using:          qdrant.PtrOf(slot),
			Limit:          qdrant.PtrOf(limit),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         buildFilter(filters),
		}
		if threshold > 0 {
			query.ScoreThreshold = qdrant.PtrOf(threshold)
		}
		res, err := s.client.Query(ctx, query)
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	chunks := make([]Chunk, len(points))
	for i, p := range points {
		chunks[i] = chunkFromPoint(p)
	}
	return chunks, nil
}

// buildFilter converts caller filters into Qdrant must-match conditions.
// Caller filters are never dropped or rewritten.
func buildFilter(filters map[string]string) *qdrant.Filter {
	if len(filters) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		conditions = append(conditions, qdrant.NewMatch(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

// chunkFromPoint maps a scored point's payload onto a Chunk.
func chunkFromPoint(p *qdrant.ScoredPoint) Chunk {
	c := Chunk{Score: p.Score}
	for key, v := range p.Payload {
		sv, ok := v.Kind.(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch key {
		case "id":
			c.ID = sv.StringValue
		case "text":
			c.Text = sv.StringValue
		case "document_id":
			c.DocumentID = sv.StringValue
		case "title":
			c.Metadata.Title = sv.StringValue
		case "article":
			c.Metadata.Article = sv.StringValue
		case "note":
			c.Metadata.Note = sv.StringValue
		case "path":
			c.Metadata.Path = sv.StringValue
		case "authority":
			c.Metadata.Authority = sv.StringValue
		case "language":
			c.Metadata.Language = sv.StringValue
		case "valid_from":
			c.Metadata.ValidFrom = sv.StringValue
		case "valid_to":
			c.Metadata.ValidTo = sv.StringValue
		}
	}
	return c
}

// IsTransientError checks if an error is transient (should retry).
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// retryOperation retries an operation with exponential backoff.
func (s *Store) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

var _ Searcher = (*Store)(nil)
