package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/tradewire/app/llm"
	"github.com/lysyi3m/tradewire/app/llm/mocks"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

type MockFinder struct {
	mock.Mock
}

func (m *MockFinder) FindRecentMatches(ctx context.Context, kind transaction.Kind, teamIDs []teams.ID, from, to time.Time) ([]transaction.Transaction, error) {
	args := m.Called(ctx, kind, teamIDs, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]transaction.Transaction), args.Error(1)
}

func candidate(t *testing.T) transaction.Candidate {
	t.Helper()
	c, err := transaction.Decode([]byte(`{"type":"signing","timestamp":"2025-03-10T16:00:00Z","summary":"Bills sign WR","team":"BUF","player":{"name":"John Doe","position":"WR"},"signing_type":"free_agent"}`))
	require.NoError(t, err)
	require.NoError(t, transaction.Check(c))
	return c
}

var (
	at       = time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC)
	existing = []transaction.Transaction{{
		ID:        "t-1",
		Kind:      transaction.KindSigning,
		Timestamp: at.Add(-2 * time.Hour),
		TeamIDs:   []teams.ID{"BUF"},
		Data:      []byte(`{"type":"signing","summary":"Buffalo signs John Doe"}`),
	}}
)

func expectWindow(f *MockFinder, rows []transaction.Transaction, err error) {
	f.On("FindRecentMatches", mock.Anything, transaction.KindSigning, []teams.ID{"BUF"}, at.Add(-Window), at.Add(Window)).
		Return(rows, err).Once()
}

func TestIsDuplicate_NoMatchesSkipsModel(t *testing.T) {
	finder := new(MockFinder)
	expectWindow(finder, []transaction.Transaction{}, nil)
	client := mocks.NewMockClient(t)

	dup, err := New(finder, client, "", 0).IsDuplicate(context.Background(), candidate(t))
	require.NoError(t, err)
	assert.False(t, dup)
	client.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
	finder.AssertExpectations(t)
}

func TestIsDuplicate_ModelAnswers(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"DUPLICATE", true},
		{"  duplicate.\n", true},
		{"Duplicate - same signing", true},
		{"NEW", false},
		{"new", false},
		{"I think this is a DUPLICATE", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			finder := new(MockFinder)
			expectWindow(finder, existing, nil)

			client := mocks.NewMockClient(t)
			client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req llm.MessageRequest) bool {
				p := req.Messages[0].Content
				return req.Model == DefaultModel && strings.Contains(p, `"t-1"`) && strings.Contains(p, `"John Doe"`)
			})).Return(mocks.TextResponse(tt.answer), nil).Once()

			dup, err := New(finder, client, "", 0).IsDuplicate(context.Background(), candidate(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, dup)
		})
	}
}

func TestIsDuplicate_FailsOpen(t *testing.T) {
	tests := map[string]struct {
		resp *llm.MessageResponse
		err  error
	}{
		"transport error": {nil, errors.New("timeout")},
		"no text":         {&llm.MessageResponse{Content: []llm.ContentBlock{{Type: "tool_use"}}}, nil},
		"empty":           {&llm.MessageResponse{}, nil},
		"nil response":    {nil, nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			finder := new(MockFinder)
			expectWindow(finder, existing, nil)

			client := mocks.NewMockClient(t)
			client.On("CreateMessage", mock.Anything, mock.Anything).Return(tt.resp, tt.err).Once()

			dup, err := New(finder, client, "m", 4).IsDuplicate(context.Background(), candidate(t))
			require.NoError(t, err)
			assert.False(t, dup)
		})
	}
}

func TestIsDuplicate_StoreErrorIsReturned(t *testing.T) {
	finder := new(MockFinder)
	expectWindow(finder, nil, errors.New("database is locked"))
	client := mocks.NewMockClient(t)

	_, err := New(finder, client, "", 0).IsDuplicate(context.Background(), candidate(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(candidate(t), existing)
	require.NoError(t, err)
	assert.Contains(t, prompt, "DUPLICATE or NEW")
	assert.Contains(t, prompt, `"signing_type":"free_agent"`)
	assert.Contains(t, prompt, `"summary": "Buffalo signs John Doe"`)
	assert.NotContains(t, prompt, "pending-commit")
}
