package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for the workflow engine and agents.
// Values are resolved in order: defaults, YAML file, environment, options.
type Config struct {
	// MaxReflectionIterations caps the critique/revise loop per draft.
	MaxReflectionIterations int `yaml:"max_reflection_iterations"`

	// PlannerToolCallLimit caps reason/act cycles before forced drafting.
	PlannerToolCallLimit int `yaml:"planner_tool_call_limit"`

	// SectionLoopCeiling bounds the per-section drafting loop.
	SectionLoopCeiling int `yaml:"section_loop_ceiling"`

	// ConsumerTimeout bounds the wait for the next event during a run.
	ConsumerTimeout time.Duration `yaml:"consumer_timeout"`

	// EventBufferSize is the emitter channel capacity.
	EventBufferSize int `yaml:"event_buffer_size"`

	// RedisURL enables Redis-backed checkpoint and history stores when set.
	RedisURL string `yaml:"redis_url"`

	// CheckpointTTL expires abandoned thread checkpoints.
	CheckpointTTL time.Duration `yaml:"checkpoint_ttl"`

	// ReasoningModel and DraftingModel name the provider models per role.
	ReasoningModel string `yaml:"reasoning_model"`
	DraftingModel  string `yaml:"drafting_model"`

	// ToneScoreThreshold is the minimum acceptable tone score.
	ToneScoreThreshold int `yaml:"tone_score_threshold"`
}

// Option configures a Config
type Option func(*Config)

// WithMaxReflectionIterations sets the critique/revise loop cap
func WithMaxReflectionIterations(n int) Option {
	return func(c *Config) { c.MaxReflectionIterations = n }
}

// WithRedisURL points the durable stores at a Redis instance
func WithRedisURL(url string) Option {
	return func(c *Config) { c.RedisURL = url }
}

// WithConsumerTimeout sets the per-event wait bound
func WithConsumerTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConsumerTimeout = d }
}

// WithCheckpointTTL sets the checkpoint expiry
func WithCheckpointTTL(ttl time.Duration) Option {
	return func(c *Config) { c.CheckpointTTL = ttl }
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		MaxReflectionIterations: 3,
		PlannerToolCallLimit:    5,
		SectionLoopCeiling:      20,
		ConsumerTimeout:         120 * time.Second,
		EventBufferSize:         256,
		CheckpointTTL:           24 * time.Hour,
		ReasoningModel:          "reasoning-default",
		DraftingModel:           "drafting-default",
		ToneScoreThreshold:      6,
	}
}

// NewConfig builds a Config from defaults, optional YAML file
// (CERINA_CONFIG_FILE), environment variables, then options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("CERINA_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	cfg.loadEnv()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("CERINA_MAX_REFLECTION_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxReflectionIterations = n
		}
	}
	if v := os.Getenv("CERINA_CONSUMER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConsumerTimeout = d
		}
	}
	if v := os.Getenv("CERINA_REASONING_MODEL"); v != "" {
		c.ReasoningModel = v
	}
	if v := os.Getenv("CERINA_DRAFTING_MODEL"); v != "" {
		c.DraftingModel = v
	}
}

// Validate checks the configuration for nonsensical values
func (c *Config) Validate() error {
	if c.MaxReflectionIterations < 1 {
		return fmt.Errorf("%w: max_reflection_iterations must be >= 1", ErrInvalidConfiguration)
	}
	if c.PlannerToolCallLimit < 1 {
		return fmt.Errorf("%w: planner_tool_call_limit must be >= 1", ErrInvalidConfiguration)
	}
	if c.SectionLoopCeiling < 1 {
		return fmt.Errorf("%w: section_loop_ceiling must be >= 1", ErrInvalidConfiguration)
	}
	if c.ConsumerTimeout <= 0 {
		return fmt.Errorf("%w: consumer_timeout must be positive", ErrInvalidConfiguration)
	}
	if c.EventBufferSize < 1 {
		return fmt.Errorf("%w: event_buffer_size must be >= 1", ErrInvalidConfiguration)
	}
	return nil
}
