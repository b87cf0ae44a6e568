package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rotisserie/eris"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBDriver string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"sqlite" choice:"postgres" description:"Storage backend"`
	DBPath   string `long:"db-path" env:"DB_PATH" default:"./data/tradewire.db" description:"SQLite database file"`
	DBDSN    string `long:"db-dsn" env:"DB_DSN" description:"Postgres connection string (postgres driver only)"`

	// Application configuration
	FeedsDir          string `long:"feeds-dir" env:"FEEDS_DIR" default:"./feeds" description:"Directory containing source configuration files"`
	Port              string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	SchedulerInterval int    `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"900" description:"Seconds between scheduled runs (0 disables the scheduler)"`
	APIAccessKey      string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	LockFile          string `long:"lock-file" env:"LOCK_FILE" description:"Advisory lock file; overlapping runs on this host are skipped"`
	Once              bool   `long:"once" env:"ONCE" description:"Run the pipeline once, print the result and exit"`

	// Model configuration
	AnthropicAPIKey  string `long:"anthropic-api-key" env:"ANTHROPIC_API_KEY" description:"Anthropic API key (required)"`
	ExtractModel     string `long:"extract-model" env:"EXTRACT_MODEL" default:"claude-haiku-4-5-20251001" description:"Model used for transaction extraction"`
	DedupModel       string `long:"dedup-model" env:"DEDUP_MODEL" default:"claude-haiku-4-5-20251001" description:"Model used for duplicate judgement"`
	ExtractMaxTokens int    `long:"extract-max-tokens" env:"EXTRACT_MAX_TOKENS" default:"2048" description:"Token ceiling for extraction responses"`
	DedupMaxTokens   int    `long:"dedup-max-tokens" env:"DEDUP_MAX_TOKENS" default:"16" description:"Token ceiling for duplicate responses"`
	ModelTimeout     int    `long:"model-timeout" env:"MODEL_TIMEOUT" default:"60" description:"Per-call model timeout in seconds"`
	ModelRPM         int    `long:"model-rpm" env:"MODEL_RPM" default:"0" description:"Maximum model calls per minute (0 is unlimited)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Tradewire/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the command line and environment. It returns nil, nil when
// help was requested.
func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, eris.Wrap(err, "failed to parse configuration")
	}

	cfg := &Cfg{
		DBDriver:          raw.DBDriver,
		DBPath:            raw.DBPath,
		DBDSN:             raw.DBDSN,
		FeedsDir:          raw.FeedsDir,
		Port:              raw.Port,
		SchedulerInterval: raw.SchedulerInterval,
		APIAccessKey:      raw.APIAccessKey,
		LockFile:          raw.LockFile,
		Once:              raw.Once,
		AnthropicAPIKey:   raw.AnthropicAPIKey,
		ExtractModel:      raw.ExtractModel,
		DedupModel:        raw.DedupModel,
		ExtractMaxTokens:  raw.ExtractMaxTokens,
		DedupMaxTokens:    raw.DedupMaxTokens,
		ModelTimeout:      raw.ModelTimeout,
		ModelRPM:          raw.ModelRPM,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(c *Cfg) error {
	if c.AnthropicAPIKey == "" {
		return eris.New("anthropic-api-key is required")
	}
	if c.DBDriver == "postgres" && c.DBDSN == "" {
		return eris.New("db-dsn is required for the postgres driver")
	}
	if c.SchedulerInterval < 0 {
		return eris.New("scheduler-interval must be non-negative")
	}
	if c.ExtractMaxTokens <= 0 || c.DedupMaxTokens <= 0 {
		return eris.New("model max tokens must be positive")
	}
	if c.ModelTimeout < 0 || c.ModelRPM < 0 {
		return eris.New("model timeout and rpm must be non-negative")
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
