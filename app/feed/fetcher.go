package feed

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxBodyBytes bounds any single feed or article download.
const maxBodyBytes = 10 << 20

// Fetcher downloads and parses every enabled source.
type Fetcher struct {
	catalog     *SourceCatalog
	httpClient  *http.Client
	parser      *Parser
	extractor   *ContentExtractor
	userAgent   string
	concurrency int
}

func NewFetcher(catalog *SourceCatalog, httpClient *http.Client, userAgent string) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Fetcher{
		catalog:     catalog,
		httpClient:  httpClient,
		parser:      NewParser(),
		extractor:   NewContentExtractor(),
		userAgent:   userAgent,
		concurrency: 4,
	}
}

// FetchAll returns the items of every enabled source, grouped by source
// name and in feed order within a source. A failing source contributes no
// items. The only error is cancellation of ctx.
func (f *Fetcher) FetchAll(ctx context.Context) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fetch cancelled")
	}

	sources := f.catalog.Enabled()
	results := make([][]Item, len(sources))

	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for i, source := range sources {
		g.Go(func() error {
			results[i] = f.FetchOne(ctx, source)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "fetch cancelled")
	}

	var items []Item
	for _, r := range results {
		items = append(items, r...)
	}

	zap.L().Info("Sources fetched",
		zap.Int("sources", len(sources)),
		zap.Int("items", len(items)))

	return items, nil
}

// FetchOne downloads and parses a single source. Failures are logged and
// yield an empty result.
func (f *Fetcher) FetchOne(ctx context.Context, source *Source) []Item {
	start := time.Now()

	data, err := f.get(ctx, source.URL, source.Settings.TimeoutDuration())
	if err != nil {
		zap.L().Warn("Source fetch failed",
			zap.String("source", source.Name),
			zap.String("url", source.URL),
			zap.Error(err))
		return nil
	}

	items, err := f.parser.Run(source.Name, data, source.Settings.MaxItems)
	if err != nil {
		zap.L().Warn("Source parse failed",
			zap.String("source", source.Name),
			zap.Error(err))
		return nil
	}

	zap.L().Debug("Source fetched",
		zap.String("source", source.Name),
		zap.Int("items", len(items)),
		zap.Duration("duration", time.Since(start)))

	return items
}

// Enrich fills item.Content with the linked article text when the item's
// source asks for it. Failures leave Content empty.
func (f *Fetcher) Enrich(ctx context.Context, item *Item) {
	if item.Link == "" {
		return
	}

	source, err := f.catalog.Get(item.Source)
	if err != nil || !source.Settings.ExtractContent {
		return
	}

	data, err := f.get(ctx, item.Link, source.Settings.TimeoutDuration())
	if err != nil {
		zap.L().Debug("Article fetch failed",
			zap.String("guid", item.GUID),
			zap.String("url", item.Link),
			zap.Error(err))
		return
	}

	content, err := f.extractor.Run(data, item.Link)
	if err != nil {
		zap.L().Debug("Article extraction failed",
			zap.String("guid", item.GUID),
			zap.Error(err))
		return
	}

	item.Content = content
}

func (f *Fetcher) get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create request")
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "failed to fetch")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("HTTP error: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "failed to read response body")
	}

	return data, nil
}
