package extract

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/llm"
	"github.com/lysyi3m/tradewire/app/transaction"
)

// Result is the outcome of one extraction. Candidates is never nil.
type Result struct {
	Candidates []transaction.Candidate
	Reasoning  string
}

type Extractor struct {
	client    llm.Client
	model     string
	maxTokens int64
}

func New(client llm.Client, model string, maxTokens int64) *Extractor {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Extractor{client: client, model: model, maxTokens: maxTokens}
}

// Extract asks the model for the transactions reported by item. Any model
// or output failure yields an empty result; only cancellation of ctx is
// returned as an error.
func (e *Extractor) Extract(ctx context.Context, item feed.Item) (Result, error) {
	log := zap.L().With(zap.String("guid", item.GUID), zap.String("source", item.Source))

	resp, err := e.client.CreateMessage(ctx, llm.UserPrompt(e.model, e.maxTokens, BuildPrompt(item)))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return empty(), eris.Wrap(ctxErr, "extract: cancelled")
		}
		log.Warn("extract: model call failed", zap.Error(err))
		return empty(), nil
	}
	if resp == nil {
		log.Warn("extract: empty model response")
		return empty(), nil
	}
	resp.Usage.LogCost(e.model, "extract")

	text, ok := llm.FirstText(resp)
	if !ok {
		log.Warn("extract: no text in response", zap.Int("blocks", len(resp.Content)))
		return empty(), nil
	}

	result, err := Parse(text)
	if err != nil {
		log.Warn("extract: rejected model output", zap.Error(err))
		return empty(), nil
	}

	log.Debug("extract: candidates accepted",
		zap.Int("candidates", len(result.Candidates)),
		zap.String("reasoning", result.Reasoning))
	return result, nil
}

type envelope struct {
	Reasoning    *string            `json:"reasoning"`
	Transactions *[]json.RawMessage `json:"transactions"`
}

// Parse decodes and validates a model response. Every element must pass
// or the whole response is rejected.
func Parse(text string) (Result, error) {
	dec := json.NewDecoder(strings.NewReader(llm.StripFences(text)))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return empty(), eris.Wrap(err, "extract: decode envelope")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return empty(), eris.New("extract: trailing data after envelope")
	}
	if env.Reasoning == nil {
		return empty(), eris.New("extract: envelope missing reasoning")
	}
	if env.Transactions == nil {
		return empty(), eris.New("extract: envelope missing transactions")
	}

	candidates := make([]transaction.Candidate, 0, len(*env.Transactions))
	for i, raw := range *env.Transactions {
		c, err := transaction.Decode(raw)
		if err != nil {
			return empty(), eris.Wrapf(err, "extract: transaction %d", i)
		}
		if err := transaction.Check(c); err != nil {
			return empty(), eris.Wrapf(err, "extract: transaction %d", i)
		}
		candidates = append(candidates, c)
	}

	return Result{Candidates: candidates, Reasoning: *env.Reasoning}, nil
}

func empty() Result {
	return Result{Candidates: []transaction.Candidate{}}
}
