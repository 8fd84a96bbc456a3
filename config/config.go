// Package config loads memory settings from the system settings file.
//
// Settings live under the "memory" key of a JSON or YAML document. Every key
// can be overridden from the environment with the ADOS_ prefix and
// underscores for nesting, e.g. ADOS_MEMORY_SESSION_MEMORY_MAX_ENTRIES=50.
//
// Durations (vector_db.timeout, vector_db.cache_ttl) take Go duration strings
// such as "10s" or "1m30s". A bare number is read as seconds.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mshafei721/ADOS-sub001/memory"
)

// DefaultPath is where the settings file lives relative to the working directory.
const DefaultPath = "config/system_settings.json"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ADOS"

type settings struct {
	Memory memory.Config `mapstructure:"memory"`
}

// Load reads the memory section of the settings file at path.
// A missing file or missing keys fall back to defaults; a file that exists
// but cannot be parsed is an error.
func Load(path string) (memory.Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return memory.Config{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	return Decode(v)
}

// New returns a viper instance carrying the memory defaults and environment
// bindings, without reading any file.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers every memory key with its default. Env overrides
// only apply to registered keys, so this covers optional keys too.
func SetDefaults(v *viper.Viper) {
	d := memory.DefaultConfig()

	v.SetDefault("memory.strict", d.Strict)

	v.SetDefault("memory.vector_db.provider", d.VectorDB.Provider)
	v.SetDefault("memory.vector_db.persist_directory", d.VectorDB.PersistDirectory)
	v.SetDefault("memory.vector_db.collection_name", d.VectorDB.CollectionName)
	v.SetDefault("memory.vector_db.compress", d.VectorDB.Compress)
	v.SetDefault("memory.vector_db.top_k", d.VectorDB.TopK)
	v.SetDefault("memory.vector_db.timeout", d.VectorDB.Timeout)
	v.SetDefault("memory.vector_db.cache_ttl", d.VectorDB.CacheTTL)

	v.SetDefault("memory.crew_memory.directory", d.CrewMemory.Directory)
	v.SetDefault("memory.crew_memory.max_size_mb", d.CrewMemory.MaxSizeMB)
	v.SetDefault("memory.crew_memory.mirror.endpoint", "")
	v.SetDefault("memory.crew_memory.mirror.bucket", "")
	v.SetDefault("memory.crew_memory.mirror.prefix", "")
	v.SetDefault("memory.crew_memory.mirror.access_key", "")
	v.SetDefault("memory.crew_memory.mirror.secret_key", "")
	v.SetDefault("memory.crew_memory.mirror.use_ssl", false)

	v.SetDefault("memory.session_memory.enabled", true)
	v.SetDefault("memory.session_memory.max_entries", d.SessionMemory.MaxEntries)
}

// Decode unmarshals the memory section of v and fills any gaps with defaults.
func Decode(v *viper.Viper) (memory.Config, error) {
	var s settings
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, hook); err != nil {
		return memory.Config{}, fmt.Errorf("decode memory settings: %w", err)
	}
	return s.Memory.WithDefaults(), nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// secondsToDurationHook decodes bare numbers, and numeric strings from the
// environment, into durations of that many seconds.
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType || from == durationType {
			return data, nil
		}
		var secs float64
		switch v := data.(type) {
		case int:
			secs = float64(v)
		case int64:
			secs = float64(v)
		case float64:
			secs = v
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return data, nil
			}
			secs = f
		default:
			return data, nil
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
