package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kestrad/modelgrab/internal/utils"
)

// Config holds every tunable the engine reads. Field values may change at
// runtime; the client registry patches the live session when they do.
type Config struct {
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	KATimeout         time.Duration `yaml:"keep_alive_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	PoolSize          int           `yaml:"pool_size"`
	ChunkSize         int64         `yaml:"chunk_size"`
	MaxParallelChunks int           `yaml:"max_parallel_chunks"`
	BatchWorkers      int           `yaml:"batch_workers"`
	ResumeThrottle    time.Duration `yaml:"resume_throttle"`
	BatchThrottle     time.Duration `yaml:"batch_throttle"`
	UserAgent         string        `yaml:"user_agent"`
	ProxyURL          string        `yaml:"proxy_url"`
}

func Default() Config {
	return Config{
		Timeout:           3 * time.Minute,
		KATimeout:         90 * time.Second,
		MaxRetries:        3,
		RetryDelay:        2 * time.Second,
		PoolSize:          100,
		ChunkSize:         10 * 1024 * 1024,
		MaxParallelChunks: 4,
		BatchWorkers:      10,
		ResumeThrottle:    2 * time.Second,
		BatchThrottle:     100 * time.Millisecond,
		UserAgent:         utils.ToolUserAgent,
	}
}

// applyDefaults fills zero-valued fields so a sparse YAML file still yields
// a usable config.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.KATimeout == 0 {
		c.KATimeout = def.KATimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.PoolSize == 0 {
		c.PoolSize = def.PoolSize
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.MaxParallelChunks == 0 {
		c.MaxParallelChunks = def.MaxParallelChunks
	}
	if c.BatchWorkers == 0 {
		c.BatchWorkers = def.BatchWorkers
	}
	if c.ResumeThrottle == 0 {
		c.ResumeThrottle = def.ResumeThrottle
	}
	if c.BatchThrottle == 0 {
		c.BatchThrottle = def.BatchThrottle
	}
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
}

// Provider supplies the current configuration. Implementations may change
// what they return between calls; consumers re-read rather than cache.
type Provider interface {
	Current() Config
}

// Static is a fixed, settable provider, used by the CLI (flags win over the
// file) and by tests.
type Static struct {
	mu  sync.RWMutex
	cfg Config
}

func NewStatic(cfg Config) *Static {
	cfg.applyDefaults()
	return &Static{cfg: cfg}
}

func (s *Static) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Static) Set(cfg Config) {
	cfg.applyDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

// SetAPIKey swaps only the key, leaving other fields alone.
func (s *Static) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.APIKey = key
}

// FileProvider re-reads a YAML config file on every Current call so edits
// take effect without a restart. The MODELGRAB_API_KEY environment variable
// overrides the file's api_key. Read failures fall back to the last good
// config.
type FileProvider struct {
	path string

	mu   sync.Mutex
	last Config
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path, last: Default()}
}

func (p *FileProvider) Current() Config {
	log := utils.GetLogger("config")
	p.mu.Lock()
	defer p.mu.Unlock()
	cfg, err := Load(p.path)
	if err != nil {
		log.Debug().Err(err).Str("path", p.path).Msg("Config read failed, using last known values")
		cfg = p.last
	} else {
		p.last = cfg
	}
	if key := os.Getenv("MODELGRAB_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return cfg
}

// Load parses a YAML config file and fills defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %v", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file: %v", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}
