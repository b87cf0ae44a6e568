package feed

import (
	"bytes"
	"cmp"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run parses a feed document into items attributed to source. Entries
// without a title or a usable publish date are dropped. maxItems <= 0
// keeps every entry.
func (p *Parser) Run(source string, data []byte, maxItems int) ([]Item, error) {
	// gofeed parsers keep per-document state, so one per call.
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse feed")
	}

	entries := parsed.Items
	if maxItems > 0 && len(entries) > maxItems {
		entries = entries[:maxItems]
	}

	items := make([]Item, 0, len(entries))
	dropped := 0
	for _, entry := range entries {
		item, ok := p.normalizeItem(source, entry)
		if !ok {
			dropped++
			continue
		}
		items = append(items, item)
	}

	if dropped > 0 {
		zap.L().Debug("Feed entries dropped",
			zap.String("source", source),
			zap.Int("dropped", dropped))
	}

	return items, nil
}

func (p *Parser) normalizeItem(source string, entry *gofeed.Item) (Item, bool) {
	if entry == nil {
		return Item{}, false
	}

	title := collapseSpace(entry.Title)
	if title == "" {
		return Item{}, false
	}

	// A published value that does not parse is treated as unusable, not
	// as missing, so updated is only consulted when published is absent.
	var published time.Time
	switch {
	case entry.PublishedParsed != nil:
		published = *entry.PublishedParsed
	case strings.TrimSpace(entry.Published) == "" && entry.UpdatedParsed != nil:
		published = *entry.UpdatedParsed
	default:
		return Item{}, false
	}

	link := strings.TrimSpace(entry.Link)

	return Item{
		GUID:        cmp.Or(strings.TrimSpace(entry.GUID), link, syntheticGUID(source, title)),
		Source:      source,
		Title:       title,
		Description: htmlToText(entry.Description),
		Link:        link,
		PublishedAt: published.UTC(),
	}, true
}

// syntheticGUID keys an entry that carries neither guid nor link by its
// source and accent-folded, lower-cased title.
func syntheticGUID(source, title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}
	return source + ":" + strings.ToLower(collapseSpace(folded))
}

func htmlToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
