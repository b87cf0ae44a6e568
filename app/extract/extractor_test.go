package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/llm"
	"github.com/lysyi3m/tradewire/app/llm/mocks"
	"github.com/lysyi3m/tradewire/app/transaction"
)

var testItem = feed.Item{
	GUID:        "pft-1",
	Source:      "pft",
	Title:       "Bills sign WR John Doe",
	Description: "Buffalo added a receiver on Monday.",
	PublishedAt: time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
}

const (
	signing = `{"type":"signing","timestamp":"2025-03-10T16:00:00Z","summary":"Bills sign WR John Doe","team":"BUF","player":{"name":"John Doe","position":"WR"},"signing_type":"free_agent"}`
	hire    = `{"type":"hire","timestamp":"2025-03-10T16:00:00Z","summary":"Patriots hire coach","team":"NE","staff":{"name":"C D","role":"head coach"}}`
	badEnum = `{"type":"release","timestamp":"2025-03-10T16:00:00Z","summary":"s","team":"NYJ","player":{"name":"A B"},"release_type":"traded"}`
)

func TestBuildPrompt(t *testing.T) {
	item := testItem
	item.Content = "Full article body."

	prompt := BuildPrompt(item)

	for _, want := range []string{
		"BUF: Buffalo Bills",
		`type "signing":`,
		`type "promotion":`,
		"Title: Bills sign WR John Doe",
		"Published: 2025-03-10T16:00:00Z",
		"Description: Buffalo added a receiver on Monday.",
		"Full article body.",
		"publish date",
	} {
		assert.Contains(t, prompt, want)
	}
	assert.NotContains(t, prompt, "- id ")
}

func TestBuildPrompt_OmitsEmptyFields(t *testing.T) {
	prompt := BuildPrompt(feed.Item{Title: "T", PublishedAt: testItem.PublishedAt})
	assert.NotContains(t, prompt, "Description:")
	assert.NotContains(t, prompt, "Body:")
}

func TestParse_Valid(t *testing.T) {
	result, err := Parse(`{"reasoning":"two moves","transactions":[` + signing + `,` + hire + `]}`)
	require.NoError(t, err)
	assert.Equal(t, "two moves", result.Reasoning)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, transaction.KindSigning, result.Candidates[0].Kind())
	assert.Equal(t, transaction.KindHire, result.Candidates[1].Kind())
}

func TestParse_FencedAndEmpty(t *testing.T) {
	result, err := Parse("```json\n{\"reasoning\":\"rumor only\",\"transactions\":[]}\n```")
	require.NoError(t, err)
	assert.NotNil(t, result.Candidates)
	assert.Empty(t, result.Candidates)
	assert.Equal(t, "rumor only", result.Reasoning)
}

func TestParse_FailsClosed(t *testing.T) {
	tests := map[string]string{
		"not json":              "The Bills signed a receiver.",
		"array not envelope":    `[` + signing + `]`,
		"missing reasoning":     `{"transactions":[]}`,
		"missing transactions":  `{"reasoning":"x"}`,
		"null transactions":     `{"reasoning":"x","transactions":null}`,
		"extra envelope field":  `{"reasoning":"x","transactions":[],"confidence":0.9}`,
		"reasoning not string":  `{"reasoning":1,"transactions":[]}`,
		"one invalid enum":      `{"reasoning":"x","transactions":[` + signing + `,` + badEnum + `]}`,
		"unknown kind":          `{"reasoning":"x","transactions":[{"type":"rumor","timestamp":"2025-03-10T16:00:00Z","summary":"s"}]}`,
		"unknown element field": `{"reasoning":"x","transactions":[` + strings.TrimSuffix(hire, "}") + `,"salary":5}]}`,
		"trailing data":         `{"reasoning":"x","transactions":[]} {}`,
		"trailing brace":        `{"reasoning":"x","transactions":[]}}`,
		"trailing bracket":      `{"reasoning":"x","transactions":[]}]`,
	}

	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			result, err := Parse(text)
			assert.Error(t, err)
			assert.NotNil(t, result.Candidates)
			assert.Empty(t, result.Candidates)
		})
	}
}

func TestParse_DropsModelSuppliedID(t *testing.T) {
	withID := strings.Replace(hire, `{"type":"hire"`, `{"id":"abc","type":"hire"`, 1)
	result, err := Parse(`{"reasoning":"x","transactions":[` + withID + `]}`)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)

	_, err = transaction.Encode(result.Candidates[0])
	assert.NoError(t, err, "candidate must not carry an id")
}

func TestExtract_Success(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req llm.MessageRequest) bool {
		return req.Model == DefaultModel && req.MaxTokens == DefaultMaxTokens &&
			len(req.Messages) == 1 && strings.Contains(req.Messages[0].Content, testItem.Title)
	})).Return(mocks.TextResponse(`{"reasoning":"signed","transactions":[`+signing+`]}`), nil).Once()

	result, err := New(client, "", 0).Extract(context.Background(), testItem)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "signed", result.Reasoning)
}

func TestExtract_FailsClosedOnModelProblems(t *testing.T) {
	tests := map[string]struct {
		resp *llm.MessageResponse
		err  error
	}{
		"transport error": {nil, errors.New("503 overloaded")},
		"no blocks":       {&llm.MessageResponse{}, nil},
		"nil response":    {nil, nil},
		"non-text block0": {&llm.MessageResponse{Content: []llm.ContentBlock{{Type: "tool_use"}, {Type: "text", Text: `{"reasoning":"x","transactions":[]}`}}}, nil},
		"schema failure":  {mocks.TextResponse(`{"reasoning":"x","transactions":[` + badEnum + `]}`), nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			client := mocks.NewMockClient(t)
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, tt.err).Once()

			result, err := New(client, "m", 100).Extract(context.Background(), testItem)
			require.NoError(t, err)
			assert.NotNil(t, result.Candidates)
			assert.Empty(t, result.Candidates)
		})
	}
}

func TestExtract_CancelledContextIsAnError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := mocks.NewMockClient(t)
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

	result, err := New(client, "m", 100).Extract(ctx, testItem)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, result.Candidates)
}
