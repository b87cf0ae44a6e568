package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBDriver string
	DBPath   string
	DBDSN    string

	// Application configuration
	FeedsDir          string
	Port              string
	SchedulerInterval int
	APIAccessKey      string
	LockFile          string
	Once              bool

	// Model configuration
	AnthropicAPIKey  string
	ExtractModel     string
	DedupModel       string
	ExtractMaxTokens int
	DedupMaxTokens   int
	ModelTimeout     int
	ModelRPM         int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

func (c *Cfg) SchedulerIntervalDuration() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Second
}

func (c *Cfg) ModelTimeoutDuration() time.Duration {
	return time.Duration(c.ModelTimeout) * time.Second
}
