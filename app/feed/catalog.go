package feed

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// SourceCatalog caches the source configurations found in the feeds
// directory, one <name>.yml file per source.
type SourceCatalog struct {
	feedsDir string
	cache    map[string]*Source
	mu       sync.RWMutex
}

func NewSourceCatalog(feedsDir string) *SourceCatalog {
	return &SourceCatalog{
		feedsDir: feedsDir,
		cache:    make(map[string]*Source),
	}
}

func (sc *SourceCatalog) Run() error {
	if _, err := os.Stat(sc.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(sc.feedsDir, "*.yml"))
	if err != nil {
		return eris.Wrap(err, "catalog: find YML files")
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		source, err := sc.Load(name)
		if err != nil {
			return eris.Wrapf(err, "catalog: load %s", file)
		}

		zap.L().Debug("Source loaded",
			zap.String("source", name),
			zap.Bool("enabled", source.Settings.Enabled),
			zap.Bool("extract_content", source.Settings.ExtractContent))
	}

	return nil
}

func (sc *SourceCatalog) Load(name string) (*Source, error) {
	path := filepath.Join(sc.feedsDir, name+".yml")
	source, err := sc.parse(path)
	if err != nil {
		return nil, err
	}

	source.Name = name

	if err := validateSource(source); err != nil {
		return nil, eris.Wrapf(err, "catalog: invalid source %s", path)
	}

	sc.Add(source)
	return source, nil
}

// Add registers a source directly, replacing any source with the same name.
func (sc *SourceCatalog) Add(source *Source) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cache[source.Name] = source
}

func (sc *SourceCatalog) Get(name string) (*Source, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	source, ok := sc.cache[name]
	if !ok {
		return nil, eris.Errorf("source with name %q not found", name)
	}
	return source, nil
}

// Enabled returns enabled sources ordered by name.
func (sc *SourceCatalog) Enabled() []*Source {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	out := make([]*Source, 0, len(sc.cache))
	for _, s := range sc.cache {
		if s.Settings.Enabled {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (sc *SourceCatalog) Count() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.cache)
}

func (sc *SourceCatalog) parse(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read file")
	}

	var source Source
	if err := yaml.Unmarshal(data, &source); err != nil {
		return nil, eris.Wrap(err, "catalog: parse YAML")
	}

	if source.Settings.MaxItems == 0 {
		source.Settings.MaxItems = 50
	}
	if source.Settings.Timeout == 0 {
		source.Settings.Timeout = 30
	}

	return &source, nil
}

func validateSource(source *Source) error {
	if source.URL == "" {
		return eris.New("source URL is required")
	}
	if !strings.HasPrefix(source.URL, "http://") && !strings.HasPrefix(source.URL, "https://") {
		return eris.Errorf("source URL must be http(s): %s", source.URL)
	}
	if source.Settings.MaxItems < 0 {
		return eris.New("max items must be non-negative")
	}
	if source.Settings.Timeout < 0 {
		return eris.New("timeout must be non-negative")
	}
	return nil
}
