package cfg

// Source is one polling origin: where to fetch and how many items to keep
// per run. Name doubles as the cache file name.
type Source struct {
	Name  string
	URL   string
	Limit int
}

type Cfg struct {
	// Posting API credentials
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string

	// Generative text service
	AIAPIKey      string
	AIBaseURL     string
	AIModel       string
	AIRetries     int
	AIMaxTokens   int
	AITemperature float64
	AIPerRunCap   int

	// Risk assessment (threshold >= 10 disables the stage)
	BlockRiskThreshold float64

	// Posting policy
	DryRun         bool
	PostsPerRun    int
	DailyPostLimit int
	SleepBetween   int // seconds between successful posts
	RateLimitWait  int // seconds, fallback when no reset hint
	MaxRetries     int
	CharLimit      int

	// Sources
	Sources []Source

	// Storage and rules
	DataDir     string
	FilterRules string

	// Scheduling and ops
	TZOffsetHours int
	Schedule      string
	RunOnce       bool
	Port          string
	APIAccessKey  string
	Debug         bool
	Version       string
}

// HasPostingCredentials reports whether all four posting API keys are set.
func (c *Cfg) HasPostingCredentials() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.AccessToken != "" && c.AccessTokenSecret != ""
}

// RiskStageEnabled reports whether the advisory risk scorer should run.
func (c *Cfg) RiskStageEnabled() bool {
	return c.BlockRiskThreshold < 10.0
}
