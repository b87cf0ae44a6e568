package dedup

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lysyi3m/tradewire/app/llm"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

const (
	DefaultModel     = "claude-haiku-4-5-20251001"
	DefaultMaxTokens = 16

	// Window is how far either side of a candidate's timestamp stored
	// transactions are considered.
	Window = 24 * time.Hour
)

// MatchFinder is the structural pre-filter over stored transactions.
type MatchFinder interface {
	FindRecentMatches(ctx context.Context, kind transaction.Kind, teamIDs []teams.ID, from, to time.Time) ([]transaction.Transaction, error)
}

type Detector struct {
	store     MatchFinder
	client    llm.Client
	model     string
	maxTokens int64
}

func New(store MatchFinder, client llm.Client, model string, maxTokens int64) *Detector {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Detector{store: store, client: client, model: model, maxTokens: maxTokens}
}

// IsDuplicate reports whether c describes an event already on record. The
// model is consulted only when the structural filter finds candidates, and
// an unusable model answer counts as new. Store errors are returned.
func (d *Detector) IsDuplicate(ctx context.Context, c transaction.Candidate) (bool, error) {
	at := c.When()
	matches, err := d.store.FindRecentMatches(ctx, c.Kind(), c.TeamIDs(), at.Add(-Window), at.Add(Window))
	if err != nil {
		return false, eris.Wrap(err, "dedup: find recent matches")
	}
	if len(matches) == 0 {
		return false, nil
	}

	log := zap.L().With(zap.String("kind", string(c.Kind())), zap.Int("matches", len(matches)))

	prompt, err := BuildPrompt(c, matches)
	if err != nil {
		log.Warn("dedup: build prompt failed, treating as new", zap.Error(err))
		return false, nil
	}

	resp, err := d.client.CreateMessage(ctx, llm.UserPrompt(d.model, d.maxTokens, prompt))
	if err != nil {
		log.Warn("dedup: model call failed, treating as new", zap.Error(err))
		return false, nil
	}
	if resp == nil {
		log.Warn("dedup: empty model response, treating as new")
		return false, nil
	}
	resp.Usage.LogCost(d.model, "dedup")

	text, ok := llm.FirstText(resp)
	if !ok {
		log.Warn("dedup: no text in response, treating as new")
		return false, nil
	}

	duplicate := IsDuplicateAnswer(text)
	log.Debug("dedup: judged", zap.String("answer", text), zap.Bool("duplicate", duplicate))
	return duplicate, nil
}

// IsDuplicateAnswer matches a trimmed, case-insensitive DUPLICATE prefix.
func IsDuplicateAnswer(text string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(text)), "DUPLICATE")
}

const instructions = `You decide whether a newly extracted NFL transaction describes an event that is already on record.

A duplicate is the same person or staff member, the same team(s), the same kind of transaction and the same approximate event. Different contract figures or wording in the summary do not make it a different event. A different player, staff member or team makes it new.

Answer with exactly one word: DUPLICATE or NEW.`

type record struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// BuildPrompt presents the candidate and the stored matches as JSON.
func BuildPrompt(c transaction.Candidate, matches []transaction.Transaction) (string, error) {
	candidate, err := transaction.Encode(c)
	if err != nil {
		return "", eris.Wrap(err, "dedup: encode candidate")
	}

	records := make([]record, len(matches))
	for i, m := range matches {
		records[i] = record{ID: m.ID, Timestamp: m.Timestamp, Data: m.Data}
	}
	existing, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "dedup: encode matches")
	}

	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\n--- New transaction ---\n")
	b.Write(candidate)
	b.WriteString("\n\n--- Transactions on record ---\n")
	b.Write(existing)
	b.WriteString("\n")
	return b.String(), nil
}
