package reviewscraper

import (
	"bookreviews-backend/lib/configutil"
	configlibsql "bookreviews-backend/lib/configutil/libsql"
	"bookreviews-backend/lib/scrapers/goodreads/core"
	"bookreviews-backend/lib/scrapers/goodreads/nextdata"
	"bookreviews-backend/lib/scrapers/goodreads/search"
	"time"
)

type FetchConfig struct {
	DelayMs            int      `json:"delay_ms"`
	TimeoutMs          int      `json:"timeout_ms"`
	RateLimitRetries   int      `json:"rate_limit_retries"`
	BackoffBaseMs      int      `json:"backoff_base_ms"`
	BackoffCapMs       int      `json:"backoff_cap_ms"`
	TransientRetries   int      `json:"transient_retries"`
	TransientStepMs    int      `json:"transient_step_ms"`
	ChallengeThreshold int      `json:"challenge_threshold"`
	ChallengeMarkers   []string `json:"challenge_markers"`
	UserAgent          string   `json:"user_agent"`
	// when set and debug logging is on, every http message is written here
	DebugDumpDir string `json:"debug_dump_dir"`
}

type PagesConfig struct {
	// 0 means every page the book has
	MaxPages int `json:"max_pages"`
	PerPage  int `json:"per_page"`
}

type CacheConfig struct {
	Enabled bool `json:"enabled"`
	// serve pages from the cache before going to the network
	Read      bool   `json:"read"`
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c CacheConfig) Database() configlibsql.Struct {
	return configlibsql.Struct{
		File:      c.File,
		Url:       c.Url,
		AuthToken: c.AuthToken,
	}
}

type OutputConfig struct {
	// results database, runs are not persisted when it is empty
	DB configlibsql.Struct `json:"db"`
}

type Config struct {
	BaseUrl           string        `json:"base_url"`
	Workers           int           `json:"workers"`
	RunTimeoutSeconds int           `json:"run_timeout_seconds"`
	Fetch             FetchConfig   `json:"fetch"`
	Match             search.Policy `json:"match"`
	Pages             PagesConfig   `json:"pages"`
	Cache             CacheConfig   `json:"cache"`
	Output            OutputConfig  `json:"output"`
}

func DefaultConfig() Config {
	fetch := core.DefaultOptions()
	return Config{
		BaseUrl: core.DefaultBaseUrl,
		Workers: 4,
		Fetch: FetchConfig{
			DelayMs:            int(fetch.Delay.Milliseconds()),
			TimeoutMs:          int(fetch.Timeout.Milliseconds()),
			RateLimitRetries:   fetch.Retry.RateLimitRetries,
			BackoffBaseMs:      int(fetch.Retry.BackoffBase.Milliseconds()),
			BackoffCapMs:       int(fetch.Retry.BackoffCap.Milliseconds()),
			TransientRetries:   fetch.Retry.TransientRetries,
			TransientStepMs:    int(fetch.Retry.TransientStep.Milliseconds()),
			ChallengeThreshold: fetch.ChallengeThreshold,
			ChallengeMarkers:   fetch.ChallengeMarkers,
			UserAgent:          fetch.UserAgent,
		},
		Match: search.DefaultPolicy(),
		Pages: PagesConfig{
			PerPage: nextdata.DefaultPerPage,
		},
		Cache: CacheConfig{
			File: ".cache/pages.db",
		},
	}
}

// LoadConfig reads `name` (and its .local override) over DefaultConfig, a
// missing file yields the defaults.
func LoadConfig(name string) (Config, error) {
	return configutil.ReadWithDefaults(name, DefaultConfig())
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// FetchOptions turns the config into fetcher options, the cache is set
// separately since it has to be opened first.
func (c Config) FetchOptions() core.Options {
	return core.Options{
		BaseUrl: c.BaseUrl,
		Delay:   millis(c.Fetch.DelayMs),
		Timeout: millis(c.Fetch.TimeoutMs),
		Retry: core.RetryPolicy{
			RateLimitRetries: c.Fetch.RateLimitRetries,
			BackoffBase:      millis(c.Fetch.BackoffBaseMs),
			BackoffCap:       millis(c.Fetch.BackoffCapMs),
			TransientRetries: c.Fetch.TransientRetries,
			TransientStep:    millis(c.Fetch.TransientStepMs),
		},
		ChallengeThreshold: c.Fetch.ChallengeThreshold,
		ChallengeMarkers:   c.Fetch.ChallengeMarkers,
		UserAgent:          c.Fetch.UserAgent,
		CacheRead:          c.Cache.Enabled && c.Cache.Read,
	}
}
