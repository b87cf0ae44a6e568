package feed

import (
	"time"
)

// Item is one normalized entry from a source feed. Every Item leaving the
// parser has a non-empty GUID, Title and PublishedAt.
type Item struct {
	GUID        string    `json:"guid"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`

	// Content is readable article text, fetched only for sources with
	// extract_content enabled. It is never persisted.
	Content string `json:"-"`
}

// Configuration types

type Source struct {
	Name     string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`
	Settings SourceSettings `yaml:"settings"`
}

type SourceSettings struct {
	Enabled        bool `yaml:"enabled"`
	Timeout        int  `yaml:"timeout"`   // seconds
	MaxItems       int  `yaml:"max_items"` // entries taken from the top of the feed
	ExtractContent bool `yaml:"extract_content"`
}

func (s SourceSettings) TimeoutDuration() time.Duration {
	if s.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.Timeout) * time.Second
}
