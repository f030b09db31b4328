package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yektalaw/pasokhd/internal/llm"
)

type stubProvider struct {
	text     string
	err      error
	messages []llm.Message
}

func (s *stubProvider) Generate(ctx context.Context, messages []llm.Message) (*llm.GenerateResult, error) {
	s.messages = messages
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResult{Text: s.text}, nil
}

func (s *stubProvider) Name() string { return "stub" }

func TestClassifyGreeting(t *testing.T) {
	stub := &stubProvider{text: `{"category":"greeting","confidence":0.95,"direct_response":"سلام! چطور می‌توانم کمک کنم؟","reason":"plain salutation"}`}
	c := New(stub, nil)

	res := c.Classify(context.Background(), Input{Query: "سلام", Language: "fa"})

	assert.Equal(t, CategoryGreeting, res.Category)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.NotEmpty(t, res.DirectResponse)
	assert.False(t, res.Category.NeedsRetrieval())
}

func TestClassifyBusinessQuestion(t *testing.T) {
	stub := &stubProvider{text: `{"category":"business_question","confidence":0.9,"reason":"asks about a statute"}`}
	c := New(stub, nil)

	res := c.Classify(context.Background(), Input{Query: "ماده ده قانون مدنی چی می‌گه؟", Language: "fa"})

	assert.Equal(t, CategoryBusinessQuestion, res.Category)
	assert.True(t, res.Category.NeedsRetrieval())
}

func TestClassifyToleratesCodeFences(t *testing.T) {
	stub := &stubProvider{text: "```json\n{\"category\":\"chitchat\",\"confidence\":0.7,\"direct_response\":\"خوبم، ممنون!\"}\n```"}
	c := New(stub, nil)

	res := c.Classify(context.Background(), Input{Query: "حالت چطوره؟", Language: "fa"})
	assert.Equal(t, CategoryChitchat, res.Category)
}

func TestClassifyProviderErrorDefaultsToBusinessQuestion(t *testing.T) {
	stub := &stubProvider{err: errors.New("upstream unavailable")}
	c := New(stub, nil)

	res := c.Classify(context.Background(), Input{Query: "شرایط طلاق توافقی چیست؟", Language: "fa"})

	assert.Equal(t, CategoryBusinessQuestion, res.Category)
	assert.Zero(t, res.Confidence)
	assert.True(t, res.Category.NeedsRetrieval())
}

func TestClassifyUnparseableDefaultsToBusinessQuestion(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"prose only", "I think this is a greeting."},
		{"invalid category", `{"category":"unknown","confidence":0.5}`},
		{"confidence out of range", `{"category":"greeting","confidence":1.5,"direct_response":"hi"}`},
		{"missing direct response", `{"category":"greeting","confidence":0.9}`},
		{"broken json", `{"category":"greeting",`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(&stubProvider{text: tt.text}, nil)
			res := c.Classify(context.Background(), Input{Query: "q", Language: "fa"})
			assert.Equal(t, CategoryBusinessQuestion, res.Category)
		})
	}
}

func TestClassifyPromptIncludesContext(t *testing.T) {
	stub := &stubProvider{text: `{"category":"business_question","confidence":0.9}`}
	c := New(stub, nil)

	c.Classify(context.Background(), Input{
		Query:    "این بند یعنی چه؟",
		Language: "fa",
		Summary:  "کاربر درباره قرارداد اجاره سوال کرده است.",
		RecentTurns: []llm.Message{
			{Role: llm.RoleUser, Content: "قرارداد اجاره چیست؟"},
			{Role: llm.RoleAssistant, Content: "قراردادی است که..."},
		},
		FileDigests: []string{"متن استخراج‌شده از فایل پیوست"},
	})

	require.Len(t, stub.messages, 2)
	user := stub.messages[1].Content
	assert.Contains(t, user, "قرارداد اجاره")
	assert.Contains(t, user, "Attached document 1")
	assert.Contains(t, user, "این بند یعنی چه؟")
}
