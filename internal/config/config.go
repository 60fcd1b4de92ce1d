package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	HTTP      HTTPConfig      `yaml:"http"`
	Audio     AudioConfig     `yaml:"audio"`
	Silence   SilenceConfig   `yaml:"silence"`
	ASR       ASRConfig       `yaml:"asr"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Notes     NotesConfig     `yaml:"notes"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains UDP ingest server configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	QueueSize   int    `yaml:"queue_size"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// AudioConfig contains capture buffer and chunk scheduling parameters
type AudioConfig struct {
	SampleRate       int     `yaml:"sample_rate"`        // ingest rate, Hz
	BufferCapSeconds float64 `yaml:"buffer_cap_seconds"` // capture buffer hard cap
	ChunkNominal     float64 `yaml:"chunk_nominal"`      // seconds
	ChunkMin         float64 `yaml:"chunk_min"`          // seconds
	ChunkMax         float64 `yaml:"chunk_max"`          // seconds
	PollInterval     float64 `yaml:"poll_interval"`      // seconds
	QueueSize        int     `yaml:"queue_size"`         // chunk queue capacity
}

// SilenceConfig contains RMS silence detection parameters
type SilenceConfig struct {
	Threshold  float64 `yaml:"threshold"`   // RMS level, 0..1
	Hold       float64 `yaml:"hold"`        // seconds below threshold before silent
	WindowSize int     `yaml:"window_size"` // samples per RMS window
	Smoothing  float64 `yaml:"smoothing"`   // exponential smoothing factor
}

// ASRConfig contains speech recognition backend configuration
type ASRConfig struct {
	Backend    string `yaml:"backend"`  // "whisper" or "parakeet"
	Endpoint   string `yaml:"endpoint"` // transcription HTTP endpoint
	APIKey     string `yaml:"api_key"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"` // rate required by the backend, Hz
	Timeout    int    `yaml:"timeout"`     // seconds
	MaxRetries int    `yaml:"max_retries"`
}

// EmbeddingConfig contains embedding backend and pipeline configuration
type EmbeddingConfig struct {
	Endpoint      string  `yaml:"endpoint"` // OpenAI-compatible /v1/embeddings
	Model         string  `yaml:"model"`
	Dims          int     `yaml:"dims"`
	Timeout       int     `yaml:"timeout"`        // seconds
	SweepInterval float64 `yaml:"sweep_interval"` // seconds between backlog sweeps
}

// LLMConfig contains LLM provider configuration
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "ollama" or "" (disabled)
	APIKey      string  `yaml:"api_key"`
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	Timeout     int     `yaml:"timeout"` // seconds
}

// RetrievalConfig contains hybrid retrieval parameters
type RetrievalConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	LimitStep    int `yaml:"limit_step"`
	MaxLimit     int `yaml:"max_limit"`
}

// NotesConfig contains note-mention monitor parameters
type NotesConfig struct {
	MaxWatches    int     `yaml:"max_watches"`
	CheckEvery    int     `yaml:"check_every"`    // trigger every N new segments
	WindowSize    int     `yaml:"window_size"`    // recent segments per check
	CooldownSecs  float64 `yaml:"cooldown"`       // per-phrase alert cooldown, seconds
	UseLLM        bool    `yaml:"use_llm"`        // LLM evaluator when a provider is configured
}

// StorageConfig contains SQLite storage configuration
type StorageConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:     4600,
			BindAddress: "127.0.0.1",
			BufferSize:  65536,
			QueueSize:   1000,
		},
		HTTP: HTTPConfig{
			Port:    8090,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate:       16000,
			BufferCapSeconds: 30.0,
			ChunkNominal:     5.0,
			ChunkMin:         1.0,
			ChunkMax:         10.0,
			PollInterval:     0.1,
			QueueSize:        32,
		},
		Silence: SilenceConfig{
			Threshold:  0.01,
			Hold:       0.6,
			WindowSize: 1024,
			Smoothing:  0.3,
		},
		ASR: ASRConfig{
			Backend:    "whisper",
			Endpoint:   "http://localhost:9000/transcribe",
			Language:   "auto",
			SampleRate: 16000,
			Timeout:    30,
			MaxRetries: 2,
		},
		Embedding: EmbeddingConfig{
			Endpoint:      "http://localhost:11434/v1/embeddings",
			Model:         "bge-small-en-v1.5",
			Dims:          384,
			Timeout:       15,
			SweepInterval: 15.0,
		},
		LLM: LLMConfig{
			Provider:    "ollama",
			Endpoint:    "http://localhost:11434",
			Model:       "llama3.2",
			Temperature: 0.7,
			Timeout:     60,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit: 10,
			LimitStep:    10,
			MaxLimit:     30,
		},
		Notes: NotesConfig{
			MaxWatches:   10,
			CheckEvery:   5,
			WindowSize:   10,
			CooldownSecs: 60.0,
			UseLLM:       true,
		},
		Storage: StorageConfig{
			Path: "phantomear.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, applying defaults for
// omitted sections
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Silence.Validate(); err != nil {
		return fmt.Errorf("silence config: %w", err)
	}
	if err := c.ASR.Validate(); err != nil {
		return fmt.Errorf("asr config: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval config: %w", err)
	}
	if err := c.Notes.Validate(); err != nil {
		return fmt.Errorf("notes config: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates UDP server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}
	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}
	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}
	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}
	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}
		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}
	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}
	if a.BufferCapSeconds <= 0 {
		return fmt.Errorf("buffer_cap_seconds must be positive, got %f", a.BufferCapSeconds)
	}
	if a.ChunkMin <= 0 {
		return fmt.Errorf("chunk_min must be positive, got %f", a.ChunkMin)
	}
	if a.ChunkNominal < a.ChunkMin {
		return fmt.Errorf("chunk_nominal (%f) must not be less than chunk_min (%f)",
			a.ChunkNominal, a.ChunkMin)
	}
	if a.ChunkMax < a.ChunkNominal {
		return fmt.Errorf("chunk_max (%f) must not be less than chunk_nominal (%f)",
			a.ChunkMax, a.ChunkNominal)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %f", a.PollInterval)
	}
	if a.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", a.QueueSize)
	}
	return nil
}

// Validate validates silence detection configuration
func (s *SilenceConfig) Validate() error {
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", s.Threshold)
	}
	if s.Hold <= 0 {
		return fmt.Errorf("hold must be positive, got %f", s.Hold)
	}
	if s.WindowSize < 256 || s.WindowSize > 8192 {
		return fmt.Errorf("window_size must be between 256 and 8192 samples, got %d", s.WindowSize)
	}
	if s.Smoothing <= 0 || s.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %f", s.Smoothing)
	}
	return nil
}

// Validate validates ASR backend configuration
func (a *ASRConfig) Validate() error {
	if a.Backend != "whisper" && a.Backend != "parakeet" {
		return fmt.Errorf("backend must be 'whisper' or 'parakeet', got '%s'", a.Backend)
	}
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz for speech models, got %d", a.SampleRate)
	}
	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}
	return nil
}

// Validate validates embedding configuration
func (e *EmbeddingConfig) Validate() error {
	if e.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if e.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if e.Dims < 1 {
		return fmt.Errorf("dims must be positive, got %d", e.Dims)
	}
	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}
	if e.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %f", e.SweepInterval)
	}
	return nil
}

// Validate validates LLM provider configuration
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("provider must be 'openai', 'ollama' or empty, got '%s'", l.Provider)
	}
	if l.Provider == "openai" && l.APIKey == "" {
		return fmt.Errorf("api_key is required for the openai provider")
	}
	if l.Provider == "ollama" && l.Endpoint == "" {
		return fmt.Errorf("endpoint is required for the ollama provider")
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", l.Temperature)
	}
	if l.Provider != "" && l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}
	return nil
}

// Validate validates retrieval configuration
func (r *RetrievalConfig) Validate() error {
	if r.DefaultLimit < 1 {
		return fmt.Errorf("default_limit must be at least 1, got %d", r.DefaultLimit)
	}
	if r.LimitStep < 1 {
		return fmt.Errorf("limit_step must be at least 1, got %d", r.LimitStep)
	}
	if r.MaxLimit < r.DefaultLimit {
		return fmt.Errorf("max_limit (%d) must not be less than default_limit (%d)",
			r.MaxLimit, r.DefaultLimit)
	}
	return nil
}

// Validate validates note-mention monitor configuration
func (n *NotesConfig) Validate() error {
	if n.MaxWatches < 1 {
		return fmt.Errorf("max_watches must be at least 1, got %d", n.MaxWatches)
	}
	if n.CheckEvery < 1 {
		return fmt.Errorf("check_every must be at least 1, got %d", n.CheckEvery)
	}
	if n.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1, got %d", n.WindowSize)
	}
	if n.CooldownSecs < 0 {
		return fmt.Errorf("cooldown cannot be negative, got %f", n.CooldownSecs)
	}
	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr or a file path; nothing to reject here.
	return nil
}

// GetBufferCap returns the capture buffer cap as a sample count
func (a *AudioConfig) GetBufferCap() int {
	return int(a.BufferCapSeconds * float64(a.SampleRate))
}

// GetChunkNominal returns the nominal chunk window as a time.Duration
func (a *AudioConfig) GetChunkNominal() time.Duration {
	return time.Duration(a.ChunkNominal * float64(time.Second))
}

// GetChunkMin returns the minimum chunk duration as a time.Duration
func (a *AudioConfig) GetChunkMin() time.Duration {
	return time.Duration(a.ChunkMin * float64(time.Second))
}

// GetChunkMax returns the maximum chunk duration as a time.Duration
func (a *AudioConfig) GetChunkMax() time.Duration {
	return time.Duration(a.ChunkMax * float64(time.Second))
}

// GetPollInterval returns the session poll interval as a time.Duration
func (a *AudioConfig) GetPollInterval() time.Duration {
	return time.Duration(a.PollInterval * float64(time.Second))
}

// GetHold returns the silence hold time as a time.Duration
func (s *SilenceConfig) GetHold() time.Duration {
	return time.Duration(s.Hold * float64(time.Second))
}

// GetTimeoutDuration returns the ASR request timeout as a time.Duration
func (a *ASRConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetTimeoutDuration returns the embedding request timeout as a time.Duration
func (e *EmbeddingConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// GetSweepInterval returns the backlog sweep interval as a time.Duration
func (e *EmbeddingConfig) GetSweepInterval() time.Duration {
	return time.Duration(e.SweepInterval * float64(time.Second))
}

// GetTimeoutDuration returns the LLM request timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// GetCooldown returns the per-phrase alert cooldown as a time.Duration
func (n *NotesConfig) GetCooldown() time.Duration {
	return time.Duration(n.CooldownSecs * float64(time.Second))
}
