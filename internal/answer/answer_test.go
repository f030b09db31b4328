package answer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yektalaw/pasokhd/internal/llm"
	"github.com/yektalaw/pasokhd/internal/vectorstore"
)

func TestAttributeParsesSourcesTrailer(t *testing.T) {
	text, cited := Attribute("بر اساس ماده 10 [1] و تبصره آن [3].\nSOURCES: 1,3", 5)

	assert.Equal(t, []int{1, 3}, cited)
	assert.NotContains(t, text, "SOURCES")
}

func TestAttributeNoneTrailer(t *testing.T) {
	text, cited := Attribute("اطلاعات کافی در منابع موجود نیست.\nSOURCES: none", 5)

	assert.Empty(t, cited)
	assert.NotContains(t, text, "SOURCES")
}

func TestAttributeFallsBackToInlineMarkers(t *testing.T) {
	_, cited := Attribute("طبق [2] و همچنین [4]، قرارداد قابل فسخ است.", 5)
	assert.Equal(t, []int{2, 4}, cited)
}

func TestAttributeDiscardsOutOfRange(t *testing.T) {
	_, cited := Attribute("answer [1] [7] [0]\nSOURCES: 1, 7, 0", 3)
	assert.Equal(t, []int{1}, cited)
}

func TestAttributeDeduplicatesKeepingOrder(t *testing.T) {
	_, cited := Attribute("text\nSOURCES: 3,1,3,1,2", 5)
	assert.Equal(t, []int{3, 1, 2}, cited)
}

func TestAttributeEmptyText(t *testing.T) {
	text, cited := Attribute("", 5)
	assert.Empty(t, text)
	assert.Empty(t, cited)
}

// scriptedProvider returns a fixed response and records the messages it saw.
type scriptedProvider struct {
	response string
	err      error
	messages []llm.Message
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []llm.Message) (*llm.GenerateResult, error) {
	p.messages = messages
	if p.err != nil {
		return nil, p.err
	}
	return &llm.GenerateResult{
		Text:     p.response,
		Usage:    llm.Usage{InputTokens: 100, OutputTokens: 50},
		Provider: "primary",
	}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func testChunks(n int) []vectorstore.Chunk {
	chunks := make([]vectorstore.Chunk, n)
	for i := range chunks {
		chunks[i] = vectorstore.Chunk{
			ID:         fmt.Sprintf("chunk-%d", i+1),
			Text:       fmt.Sprintf("passage %d", i+1),
			DocumentID: "civil-code",
			Metadata:   vectorstore.ChunkMetadata{Title: "قانون مدنی", Article: fmt.Sprintf("%d", i+1)},
		}
	}
	return chunks
}

func TestGenerateMapsCitationsToChunks(t *testing.T) {
	provider := &scriptedProvider{response: "پاسخ بر اساس [1] و [3].\nSOURCES: 1,3"}
	g, err := NewGenerator(provider, nil)
	require.NoError(t, err)

	res, err := g.Generate(context.Background(), Request{
		Query:    "ماده 1 قانون مدنی چیست؟",
		Language: "fa",
		Chunks:   testChunks(4),
	})
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, "chunk-1", res.Sources[0].ID)
	assert.Equal(t, "chunk-3", res.Sources[1].ID)
	assert.Equal(t, "primary", res.Provider)
	assert.Equal(t, 150, res.Usage.Total())
}

func TestGenerateSourcesAreSubsetOfRetrieved(t *testing.T) {
	// Model hallucinates citation 9 with only 2 chunks retrieved.
	provider := &scriptedProvider{response: "پاسخ [9].\nSOURCES: 9,2"}
	g, err := NewGenerator(provider, nil)
	require.NoError(t, err)

	res, err := g.Generate(context.Background(), Request{
		Query:  "question",
		Chunks: testChunks(2),
	})
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, "chunk-2", res.Sources[0].ID)
}

func TestGeneratePromptContainsNumberedSources(t *testing.T) {
	provider := &scriptedProvider{response: "answer\nSOURCES: none"}
	g, err := NewGenerator(provider, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{
		Query:    "what does article 2 say?",
		Language: "en",
		Summary:  "user is asking about the civil code",
		Chunks:   testChunks(2),
	})
	require.NoError(t, err)

	require.NotEmpty(t, provider.messages)
	user := provider.messages[len(provider.messages)-1].Content
	assert.Contains(t, user, "[1]")
	assert.Contains(t, user, "[2]")
	assert.Contains(t, user, "passage 2")
	assert.Contains(t, user, "user is asking about the civil code")
	assert.Contains(t, user, "what does article 2 say?")
}

func TestGenerateIncludesRecentTurns(t *testing.T) {
	provider := &scriptedProvider{response: "answer\nSOURCES: none"}
	g, err := NewGenerator(provider, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{
		Query: "و تبصره آن؟",
		RecentTurns: []llm.Message{
			{Role: llm.RoleUser, Content: "ماده 10 چیست؟"},
			{Role: llm.RoleAssistant, Content: "ماده 10 درباره قرارداد است."},
		},
		Chunks: testChunks(1),
	})
	require.NoError(t, err)

	// system + 2 history turns + user prompt.
	require.Len(t, provider.messages, 4)
	assert.Equal(t, llm.RoleUser, provider.messages[1].Role)
	assert.Equal(t, "ماده 10 چیست؟", provider.messages[1].Content)
}

func TestGenerateEmptyResponseIsError(t *testing.T) {
	provider := &scriptedProvider{response: "   "}
	g, err := NewGenerator(provider, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{Query: "q", Chunks: testChunks(1)})
	assert.ErrorIs(t, err, ErrNoAnswer)
}

func TestGeneratePersianSystemPrompt(t *testing.T) {
	provider := &scriptedProvider{response: "answer\nSOURCES: none"}
	g, err := NewGenerator(provider, nil)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Request{Query: "q", Language: "fa", Chunks: testChunks(1)})
	require.NoError(t, err)

	system := provider.messages[0]
	assert.Equal(t, llm.RoleSystem, system.Role)
	assert.True(t, strings.Contains(system.Content, "SOURCES"))
	assert.Contains(t, system.Content, "دستیار حقوقی")
}
