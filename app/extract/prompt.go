package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/tradewire/app/feed"
	"github.com/lysyi3m/tradewire/app/teams"
	"github.com/lysyi3m/tradewire/app/transaction"
)

const (
	DefaultModel     = "claude-haiku-4-5-20251001"
	DefaultMaxTokens = 2048
)

const instructions = `You extract confirmed NFL roster and staff transactions from a single news article.

Rules:
- Report only transactions the article states as done. Rumors, interest, visits, negotiations, "expected to" and "could" are not transactions.
- Use the article's publish date as every transaction's "timestamp", in RFC 3339 format.
- Refer to teams only by the identifiers in the team list.
- Never include an "id" field.
- If the article reports no confirmed transaction, return an empty "transactions" array.

Respond with one JSON object and nothing else:
{"reasoning": "<one or two sentences on what the article reports>", "transactions": [ ... ]}`

// BuildPrompt renders the extraction prompt for one item.
func BuildPrompt(item feed.Item) string {
	var b strings.Builder

	b.WriteString(instructions)
	b.WriteString("\n\n--- Teams ---\n")
	b.WriteString(teams.Prompt())
	b.WriteString("\n--- Transaction shapes ---\n")
	b.WriteString(transaction.Describe())

	b.WriteString("\n--- Article ---\n")
	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	fmt.Fprintf(&b, "Published: %s\n", item.PublishedAt.UTC().Format(time.RFC3339))
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	if item.Content != "" {
		fmt.Fprintf(&b, "Body:\n%s\n", item.Content)
	}

	return b.String()
}
