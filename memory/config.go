package memory

import (
	"strings"
	"time"
)

// Defaults applied when a config section or key is absent.
const (
	DefaultVectorDirectory   = "./memory/global_kb/chroma"
	DefaultCollectionName    = "ados_memory"
	DefaultTopK              = 5
	DefaultVectorTimeout     = 10 * time.Second
	DefaultRecallCacheTTL    = 30 * time.Second
	DefaultCrewDirectory     = "./memory/crew_memory"
	DefaultMaxSizeMB         = 100
	DefaultSessionMaxEntries = 1000
)

// Vector providers.
const (
	// ProviderChromem is a chromem-go database persisted under PersistDirectory.
	ProviderChromem = "chromem"
	// ProviderMemory is an in-process chromem-go database that snapshots to
	// PersistDirectory on Persist.
	ProviderMemory = "memory"
	// ProviderNone disables the vector tier.
	ProviderNone = "none"
)

// Config holds Coordinator configuration.
// It is read-only after Initialize; reloading means Close and a new Coordinator.
type Config struct {
	VectorDB      VectorDBConfig      `json:"vector_db" mapstructure:"vector_db"`
	CrewMemory    CrewMemoryConfig    `json:"crew_memory" mapstructure:"crew_memory"`
	SessionMemory SessionMemoryConfig `json:"session_memory" mapstructure:"session_memory"`

	// Strict makes initialization all-or-nothing: a failing tier leaves the
	// whole Coordinator uninitialized.
	// Default: false (tiers come up independently).
	Strict bool `json:"strict" mapstructure:"strict"`
}

// VectorDBConfig configures the vector tier.
type VectorDBConfig struct {
	// Provider is one of chromem (aliases chromadb, chroma), memory or none.
	Provider         string `json:"provider" mapstructure:"provider"`
	PersistDirectory string `json:"persist_directory" mapstructure:"persist_directory"`
	CollectionName   string `json:"collection_name" mapstructure:"collection_name"`

	// Compress gzips persisted documents and snapshots.
	Compress bool `json:"compress" mapstructure:"compress"`

	// TopK is the number of matches returned by a vector read.
	// Default: 5
	TopK int `json:"top_k" mapstructure:"top_k"`

	// Timeout bounds every vector backend call.
	// Default: 10s
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// CacheTTL is how long a rendered vector read may be served from cache.
	// Default: 30s. Negative disables the cache.
	CacheTTL time.Duration `json:"cache_ttl" mapstructure:"cache_ttl"`
}

// CrewMemoryConfig configures the durable crew tier.
type CrewMemoryConfig struct {
	Directory string `json:"directory" mapstructure:"directory"`

	// MaxSizeMB caps a crew file; the oldest entries are dropped to fit.
	// Default: 100
	MaxSizeMB float64 `json:"max_size_mb" mapstructure:"max_size_mb"`

	Mirror MirrorConfig `json:"mirror" mapstructure:"mirror"`
}

// MirrorConfig points at an S3-compatible bucket receiving crew files on sync.
type MirrorConfig struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

// Enabled reports whether a mirror target is configured.
func (m MirrorConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

// SessionMemoryConfig configures the volatile session tier.
type SessionMemoryConfig struct {
	// Enabled toggles the session tier. Default: true.
	Enabled *bool `json:"enabled" mapstructure:"enabled"`

	// MaxEntries is the per-crew capacity. Default: 1000.
	MaxEntries int `json:"max_entries" mapstructure:"max_entries"`
}

// IsEnabled reports the effective enabled flag.
func (s SessionMemoryConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DefaultConfig returns sensible defaults for local use.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults returns a copy of c with every absent value filled in.
func (c Config) WithDefaults() Config {
	c.VectorDB.Provider = normalizeProvider(c.VectorDB.Provider)
	if c.VectorDB.PersistDirectory == "" {
		c.VectorDB.PersistDirectory = DefaultVectorDirectory
	}
	if c.VectorDB.CollectionName == "" {
		c.VectorDB.CollectionName = DefaultCollectionName
	}
	if c.VectorDB.TopK <= 0 {
		c.VectorDB.TopK = DefaultTopK
	}
	if c.VectorDB.Timeout <= 0 {
		c.VectorDB.Timeout = DefaultVectorTimeout
	}
	if c.VectorDB.CacheTTL == 0 {
		c.VectorDB.CacheTTL = DefaultRecallCacheTTL
	}

	if c.CrewMemory.Directory == "" {
		c.CrewMemory.Directory = DefaultCrewDirectory
	}
	if c.CrewMemory.MaxSizeMB <= 0 {
		c.CrewMemory.MaxSizeMB = DefaultMaxSizeMB
	}

	if c.SessionMemory.MaxEntries <= 0 {
		c.SessionMemory.MaxEntries = DefaultSessionMaxEntries
	}
	return c
}

// MaxSizeBytes is MaxSizeMB in bytes.
func (c CrewMemoryConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeMB * 1024 * 1024)
}

func normalizeProvider(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "", "chromem", "chromadb", "chroma":
		return ProviderChromem
	case "memory", "inmemory", "in-memory":
		return ProviderMemory
	case "none", "disabled", "off":
		return ProviderNone
	default:
		return strings.ToLower(strings.TrimSpace(p))
	}
}
