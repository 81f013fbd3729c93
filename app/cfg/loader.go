package cfg

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const defaultFeedLimit = 10

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Posting API credentials
	ConsumerKey       string `long:"consumer-key" env:"X_CONSUMER_KEY" description:"Posting API consumer key"`
	ConsumerSecret    string `long:"consumer-secret" env:"X_CONSUMER_SECRET" description:"Posting API consumer secret"`
	AccessToken       string `long:"access-token" env:"X_ACCESS_TOKEN" description:"Posting API access token"`
	AccessTokenSecret string `long:"access-token-secret" env:"X_ACCESS_TOKEN_SECRET" description:"Posting API access token secret"`

	// Generative text service
	AIAPIKey      string  `long:"ai-api-key" env:"OPENROUTER_API_KEY" description:"Generative text API key (empty disables enhancement)"`
	AIBaseURL     string  `long:"ai-base-url" env:"AI_BASE_URL" default:"https://openrouter.ai/api/v1" description:"OpenAI-compatible API base URL"`
	AIModel       string  `long:"ai-model" env:"AI_MODEL" default:"meta-llama/llama-3.2-3b-instruct:free" description:"Model identifier"`
	AIRetries     int     `long:"ai-retries" env:"AI_RETRY_ATTEMPTS" default:"3" description:"Attempts per generation call"`
	AIMaxTokens   int     `long:"ai-max-tokens" env:"AI_MAX_TOKENS" default:"150" description:"Max tokens per generation"`
	AITemperature float64 `long:"ai-temperature" env:"AI_TEMPERATURE" default:"0.7" description:"Sampling temperature"`
	AIPerRunCap   int     `long:"ai-per-run-cap" env:"MAX_AI_REQUESTS_PER_RUN" default:"40" description:"Generative calls allowed per run"`

	BlockRiskThreshold float64 `long:"block-risk-threshold" env:"BLOCK_RISK_THRESHOLD" default:"10.0" description:"Risk score above which items are skipped (10 disables the stage)"`

	// Posting policy
	DryRun         bool `long:"dry-run" env:"DRY_RUN" description:"Simulate posting, write to the dry run log instead"`
	PostsPerRun    int  `long:"posts-per-run" env:"POSTS_PER_RUN" default:"1" description:"Posts per run"`
	DailyPostLimit int  `long:"daily-post-limit" env:"DAILY_POST_LIMIT" default:"17" description:"Posts per local day"`
	SleepBetween   int  `long:"sleep-between-posts" env:"SLEEP_BETWEEN_POSTS" default:"60" description:"Seconds between successful posts"`
	RateLimitWait  int  `long:"rate-limit-wait" env:"RATE_LIMIT_WAIT" default:"180" description:"Seconds to wait on rate limit without a reset hint"`
	MaxRetries     int  `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Post attempts per item"`
	CharLimit      int  `long:"char-limit" env:"CHAR_LIMIT" default:"280" description:"Platform character limit"`

	// Sources
	Feed1URL   string   `long:"feed1-url" env:"RSS_FEED_1_URL" description:"First feed URL"`
	Feed1Limit int      `long:"feed1-limit" env:"RSS_FEED_1_LIMIT" default:"10" description:"Items per run from the first feed"`
	Feed2URL   string   `long:"feed2-url" env:"RSS_FEED_2_URL" description:"Second feed URL"`
	Feed2Limit int      `long:"feed2-limit" env:"RSS_FEED_2_LIMIT" default:"10" description:"Items per run from the second feed"`
	Feeds      []string `long:"feed" description:"Additional feed as url or url,limit (repeatable)"`

	// Storage and rules
	DataDir     string `long:"data-dir" env:"DATA_DIR" default:"./data" description:"Directory for logs and caches"`
	FilterRules string `long:"filter-rules" env:"FILTER_RULES" description:"YAML filter rules file (built-in defaults when empty)"`

	// Scheduling and ops
	TZOffsetHours int    `long:"tz-offset" env:"TZ_OFFSET_HOURS" default:"3" description:"Fixed UTC offset defining the local day"`
	Schedule      string `long:"schedule" env:"SCHEDULE" default:"0 * * * *" description:"Cron expression for pipeline runs"`
	RunOnce       bool   `long:"once" description:"Run the pipeline once and exit"`
	Port          string `long:"port" env:"PORT" description:"HTTP ops server port (empty disables)"`
	APIAccessKey  string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for write endpoints (optional)"`
	Debug         bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		ConsumerKey:        raw.ConsumerKey,
		ConsumerSecret:     raw.ConsumerSecret,
		AccessToken:        raw.AccessToken,
		AccessTokenSecret:  raw.AccessTokenSecret,
		AIAPIKey:           raw.AIAPIKey,
		AIBaseURL:          raw.AIBaseURL,
		AIModel:            raw.AIModel,
		AIRetries:          raw.AIRetries,
		AIMaxTokens:        raw.AIMaxTokens,
		AITemperature:      raw.AITemperature,
		AIPerRunCap:        raw.AIPerRunCap,
		BlockRiskThreshold: raw.BlockRiskThreshold,
		DryRun:             raw.DryRun,
		PostsPerRun:        raw.PostsPerRun,
		DailyPostLimit:     raw.DailyPostLimit,
		SleepBetween:       raw.SleepBetween,
		RateLimitWait:      raw.RateLimitWait,
		MaxRetries:         raw.MaxRetries,
		CharLimit:          raw.CharLimit,
		DataDir:            raw.DataDir,
		FilterRules:        raw.FilterRules,
		TZOffsetHours:      raw.TZOffsetHours,
		Schedule:           raw.Schedule,
		RunOnce:            raw.RunOnce,
		Port:               raw.Port,
		APIAccessKey:       raw.APIAccessKey,
		Debug:              raw.Debug,
		Version:            GetVersion(),
	}

	if raw.Feed1URL != "" {
		cfg.Sources = append(cfg.Sources, Source{Name: "feed1", URL: raw.Feed1URL, Limit: raw.Feed1Limit})
	}
	if raw.Feed2URL != "" {
		cfg.Sources = append(cfg.Sources, Source{Name: "feed2", URL: raw.Feed2URL, Limit: raw.Feed2Limit})
	}
	for _, spec := range raw.Feeds {
		source, err := parseFeedFlag(spec, len(cfg.Sources)+1)
		if err != nil {
			return nil, err
		}
		cfg.Sources = append(cfg.Sources, source)
	}

	globalCfg = cfg

	return cfg, nil
}

// parseFeedFlag parses a --feed value: "url" or "url,limit".
func parseFeedFlag(spec string, index int) (Source, error) {
	url := spec
	limit := defaultFeedLimit
	if i := strings.LastIndex(spec, ","); i >= 0 {
		parsed, err := strconv.Atoi(strings.TrimSpace(spec[i+1:]))
		if err != nil || parsed <= 0 {
			return Source{}, fmt.Errorf("invalid feed limit in %q", spec)
		}
		url = strings.TrimSpace(spec[:i])
		limit = parsed
	}
	if url == "" {
		return Source{}, fmt.Errorf("empty feed URL in %q", spec)
	}
	return Source{Name: fmt.Sprintf("feed%d", index), URL: url, Limit: limit}, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// SetForTest installs a config for tests that bypass Load.
func SetForTest(c *Cfg) {
	globalCfg = c
}
