// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"time"
)

// RetryConfig is the retry discipline shared by the provider router and
// the PubMed client.
type RetryConfig struct {
	// MaxRetries is the number of attempts per provider or per PubMed call (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Delay is the base wait; attempt n waits Delay*n before the next try (default 1s).
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// Timeout bounds one attempt when the provider spec sets none (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// RateLimitConfig holds per-user admission thresholds.
type RateLimitConfig struct {
	// RequestsPerMinute sets the refill rate: RequestsPerMinute/3600 tokens per second.
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute" mapstructure:"requests_per_minute"`

	// RequestsPerHour is the hard ceiling within one clock hour window. Zero disables it.
	RequestsPerHour int `json:"requests_per_hour" yaml:"requests_per_hour" mapstructure:"requests_per_hour"`

	// Burst is the bucket capacity.
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`
}

// CacheConfig controls the in-memory article cache.
type CacheConfig struct {
	// TTL is the age after which an entry is stale (default 24h).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`

	// Shards is the number of independently locked partitions (default 16).
	Shards int `json:"shards" yaml:"shards" mapstructure:"shards"`

	// RefreshTimeout bounds one background refresh (default 30s).
	RefreshTimeout time.Duration `json:"refresh_timeout" yaml:"refresh_timeout" mapstructure:"refresh_timeout"`

	// SnapshotPath is the SQLite file used for warm start. Empty disables snapshots.
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path" mapstructure:"snapshot_path"`
}

// ChatConfig holds prompt assembly settings.
type ChatConfig struct {
	// HistoryTurns is the number of most recent turns kept (default 10).
	HistoryTurns int `json:"history_turns" yaml:"history_turns" mapstructure:"history_turns"`

	// MaxTokens bounds a chat reply (default 1024).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// Temperature is the chat sampling temperature (default 0.7).
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	SystemPrompt string `json:"system_prompt" yaml:"system_prompt" mapstructure:"system_prompt"`

	// SpecialtyPrompts maps a specialty name to its system prompt addendum.
	SpecialtyPrompts map[Specialty]string `json:"specialty_prompts" yaml:"specialty_prompts" mapstructure:"specialty_prompts"`

	// EmergencyKeywords are matched case-insensitively as substrings of the user message.
	EmergencyKeywords []string `json:"emergency_keywords" yaml:"emergency_keywords" mapstructure:"emergency_keywords"`

	// EmergencyResponse is returned verbatim when a keyword matches.
	EmergencyResponse string `json:"emergency_response" yaml:"emergency_response" mapstructure:"emergency_response"`
}

// PubMedConfig holds E-utilities settings.
type PubMedConfig struct {
	// BaseURL is the E-utilities root (default https://eutils.ncbi.nlm.nih.gov/entrez/eutils).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// APIKey raises the NCBI rate limit. Loaded from secrets.
	APIKey string `json:"-" yaml:"-" mapstructure:"api_key"`

	// Email and Tool identify the caller to NCBI.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`
	Tool  string `json:"tool" yaml:"tool" mapstructure:"tool"`

	// FetchBatchSize is the maximum number of PMIDs per EFetch call (default 50).
	FetchBatchSize int `json:"fetch_batch_size" yaml:"fetch_batch_size" mapstructure:"fetch_batch_size"`

	// Timeout bounds one HTTP call (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// SearchConfig holds literature search settings.
type SearchConfig struct {
	// DefaultMaxResults applies when a query sets none (default 10).
	DefaultMaxResults int `json:"default_max_results" yaml:"default_max_results" mapstructure:"default_max_results"`

	// MaxParallelism bounds concurrent summarization calls (default 4).
	MaxParallelism int `json:"max_parallelism" yaml:"max_parallelism" mapstructure:"max_parallelism"`

	// RecencyHalfLife is the age at which the recency component halves (default 5 years).
	RecencyHalfLife time.Duration `json:"recency_half_life" yaml:"recency_half_life" mapstructure:"recency_half_life"`

	// Summarize enables AI summaries of ranked articles.
	Summarize bool `json:"summarize" yaml:"summarize" mapstructure:"summarize"`

	// SharedTimeout bounds a fetch or summary shared between concurrent
	// searches. It runs on after the caller that started it gives up (default 2m).
	SharedTimeout time.Duration `json:"shared_timeout" yaml:"shared_timeout" mapstructure:"shared_timeout"`
}

// SummaryConfig holds article summarization settings.
type SummaryConfig struct {
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// MaxChars truncates the summary to this many characters (default 600).
	MaxChars int `json:"max_chars" yaml:"max_chars" mapstructure:"max_chars"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is text or json.
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups every setting. It is loaded once at start and not
// modified afterwards.
type Config struct {
	Providers []ProviderSpec  `json:"providers" yaml:"providers" mapstructure:"providers"`
	Retry     RetryConfig     `json:"retry" yaml:"retry" mapstructure:"retry"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache     CacheConfig     `json:"cache" yaml:"cache" mapstructure:"cache"`
	Chat      ChatConfig      `json:"chat" yaml:"chat" mapstructure:"chat"`
	PubMed    PubMedConfig    `json:"pubmed" yaml:"pubmed" mapstructure:"pubmed"`
	Search    SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	Summary   SummaryConfig   `json:"summary" yaml:"summary" mapstructure:"summary"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultConfig returns a configuration that runs offline against the
// mock provider.
func DefaultConfig() Config {
	return Config{
		Providers: []ProviderSpec{
			{ID: ProviderOpenAI, Model: "gpt-4o-mini", Timeout: 30 * time.Second, Priority: 1},
			{ID: ProviderGemini, Model: "gemini-1.5-flash", Timeout: 30 * time.Second, Priority: 2},
			{ID: ProviderOllama, Endpoint: "http://localhost:11434", Model: "llama3", Timeout: 60 * time.Second, Priority: 3},
			{ID: ProviderHuggingFace, Model: "mistralai/Mistral-7B-Instruct-v0.2", Timeout: 60 * time.Second, Priority: 4},
			{ID: ProviderMock, Model: "mock", Timeout: time.Second, Priority: 5, Enabled: true},
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Delay:      time.Second,
			Timeout:    30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			RequestsPerHour:   1000,
			Burst:             10,
		},
		Cache: CacheConfig{
			TTL:            24 * time.Hour,
			Shards:         16,
			RefreshTimeout: 30 * time.Second,
		},
		Chat: ChatConfig{
			HistoryTurns:      10,
			MaxTokens:         1024,
			Temperature:       0.7,
			SystemPrompt:      DefaultSystemPrompt,
			SpecialtyPrompts:  DefaultSpecialtyPrompts(),
			EmergencyKeywords: append([]string(nil), DefaultEmergencyKeywords...),
			EmergencyResponse: DefaultEmergencyResponse,
		},
		PubMed: PubMedConfig{
			BaseURL:        "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Tool:           "medassist",
			FetchBatchSize: 50,
			Timeout:        30 * time.Second,
			UserAgent:      "medassist/0.1",
		},
		Search: SearchConfig{
			DefaultMaxResults: 10,
			MaxParallelism:    4,
			RecencyHalfLife:   5 * 365 * 24 * time.Hour,
			Summarize:         true,
			SharedTimeout:     2 * time.Minute,
		},
		Summary: SummaryConfig{
			MaxTokens:   256,
			Temperature: 0.2,
			MaxChars:    600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports every invalid setting in one error.
func (c Config) Validate() error {
	var errs []error
	if len(ProviderChain(c.Providers)) == 0 {
		errs = append(errs, errors.New("providers: at least one provider must be enabled"))
	}
	for i, p := range c.Providers {
		if _, err := ParseProviderID(string(p.ID)); err != nil {
			errs = append(errs, fmt.Errorf("providers[%d]: %w", i, err))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("providers[%d]: timeout must not be negative", i))
		}
	}
	if c.Retry.MaxRetries < 1 {
		errs = append(errs, errors.New("retry.max_retries must be at least 1"))
	}
	if c.Retry.Delay < 0 {
		errs = append(errs, errors.New("retry.delay must not be negative"))
	}
	if c.Retry.Timeout <= 0 {
		errs = append(errs, errors.New("retry.timeout must be positive"))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, errors.New("rate_limit.burst must be at least 1"))
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.RequestsPerHour < 0 {
		errs = append(errs, errors.New("rate_limit thresholds must not be negative"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Chat.HistoryTurns < 0 {
		errs = append(errs, errors.New("chat.history_turns must not be negative"))
	}
	if c.Chat.EmergencyResponse == "" && len(c.Chat.EmergencyKeywords) > 0 {
		errs = append(errs, errors.New("chat.emergency_response is required when emergency keywords are set"))
	}
	for sp := range c.Chat.SpecialtyPrompts {
		if _, err := ParseSpecialty(string(sp)); err != nil {
			errs = append(errs, fmt.Errorf("chat.specialty_prompts: %w", err))
		}
	}
	if c.PubMed.BaseURL == "" {
		errs = append(errs, errors.New("pubmed.base_url is required"))
	}
	if c.PubMed.FetchBatchSize < 1 {
		errs = append(errs, errors.New("pubmed.fetch_batch_size must be at least 1"))
	}
	if c.Search.MaxParallelism < 1 {
		errs = append(errs, errors.New("search.max_parallelism must be at least 1"))
	}
	return errors.Join(errs...)
}
