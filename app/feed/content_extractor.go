package feed

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxContentRunes caps the article text handed to the extraction prompt.
const maxContentRunes = 6000

type ContentExtractor struct{}

func NewContentExtractor() *ContentExtractor {
	return &ContentExtractor{}
}

// Run returns the readable text of an article page.
func (e *ContentExtractor) Run(data []byte, pageURL string) (string, error) {
	if len(data) == 0 {
		return "", eris.New("HTML data is empty")
	}

	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		base = u
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		return "", eris.Wrap(err, "failed to extract content")
	}

	text := collapseSpace(article.TextContent)
	if text == "" {
		return "", eris.New("no content extracted from HTML data")
	}

	if r := []rune(text); len(r) > maxContentRunes {
		text = strings.TrimSpace(string(r[:maxContentRunes]))
	}

	zap.L().Debug("Content extracted successfully",
		zap.String("title", article.Title),
		zap.Int("content_length", len(text)))

	return text, nil
}
