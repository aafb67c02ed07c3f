package tiffengine

import (
	"os"

	"k8s.io/apimachinery/pkg/api/resource"
)

// ErrInvalidOption is returned by an EngineOption when its argument fails
// validation, mirroring the teacher's ErrInvalidOption used by
// TilerOption/StripperOption (stripper.go).
type ErrInvalidOption struct {
	msg string
}

func (e ErrInvalidOption) Error() string { return e.msg }

// defaultMaxCachingMemoryEnv names the environment variable consulted once,
// at engineConfig construction time, for the default cache budget
// (spec.md 9's "one-shot configuration read").
const defaultMaxCachingMemoryEnv = "TIFFENGINE_MAX_CACHE"

const defaultMaxCachingMemory = 256 << 20 // 256 MiB

// engineConfig holds the recognized configuration surface from spec.md 6:
// maxCachingMemory, bigTiff, littleEndian, requireValidTiff, directCopy.
type engineConfig struct {
	maxCachingMemory int64
	bigTiff          bool
	littleEndian     bool
	requireValidTiff bool
	directCopy       bool
}

// EngineOption configures an Engine, following the teacher's
// TilerOption/StripperOption functional-options pattern.
type EngineOption func(*engineConfig) error

// newEngineConfig builds the default configuration, reading
// TIFFENGINE_MAX_CACHE (a k8s.io/apimachinery resource.Quantity string, e.g.
// "256Mi" or "1G") if set, else defaulting to 256 MiB.
func newEngineConfig() *engineConfig {
	cfg := &engineConfig{
		maxCachingMemory: defaultMaxCachingMemory,
		littleEndian:     true,
		requireValidTiff: true,
		directCopy:       true,
	}
	if s := os.Getenv(defaultMaxCachingMemoryEnv); s != "" {
		if q, err := resource.ParseQuantity(s); err == nil {
			cfg.maxCachingMemory = q.Value()
		}
	}
	return cfg
}

// WithMaxCachingMemory sets the tile cache's byte budget from a
// human-readable quantity string ("256Mi", "1G", "0" to disable caching),
// parsed with k8s.io/apimachinery/pkg/api/resource.Quantity exactly as the
// teacher parses memory requests in cmd/tiler/tiler-main.go
// (resource.MustParse("1G")).
func WithMaxCachingMemory(quantity string) EngineOption {
	return func(c *engineConfig) error {
		q, err := resource.ParseQuantity(quantity)
		if err != nil {
			return ErrInvalidOption{msg: "invalid max caching memory quantity: " + err.Error()}
		}
		if q.Sign() < 0 {
			return ErrInvalidOption{msg: "max caching memory must be non-negative"}
		}
		c.maxCachingMemory = q.Value()
		return nil
	}
}

// WithMaxCachingMemoryBytes is the programmatic (non-string) counterpart of
// WithMaxCachingMemory.
func WithMaxCachingMemoryBytes(n int64) EngineOption {
	return func(c *engineConfig) error {
		if n < 0 {
			return ErrInvalidOption{msg: "max caching memory must be non-negative"}
		}
		c.maxCachingMemory = n
		return nil
	}
}

// WithBigTIFF selects BigTIFF (64-bit offsets) framing for a writer Engine.
func WithBigTIFF(bigTiff bool) EngineOption {
	return func(c *engineConfig) error {
		c.bigTiff = bigTiff
		return nil
	}
}

// WithLittleEndian selects the byte order a writer Engine emits.
func WithLittleEndian(littleEndian bool) EngineOption {
	return func(c *engineConfig) error {
		c.littleEndian = littleEndian
		return nil
	}
}

// WithRequireValidTiff controls reader strictness: when true, FileEngine.Validate
// failures are fatal; when false they are tolerated.
func WithRequireValidTiff(require bool) EngineOption {
	return func(c *engineConfig) error {
		c.requireValidTiff = require
		return nil
	}
}

// WithDirectCopy selects the Copier's default strategy (direct byte
// passthrough vs. transcoding) when not overridden per call.
func WithDirectCopy(direct bool) EngineOption {
	return func(c *engineConfig) error {
		c.directCopy = direct
		return nil
	}
}

// Config is the read-only, exported view of an engineConfig built from
// EngineOptions, for callers (notably cmd/tiffcopy) outside
// this package that need to read back the resolved settings.
type Config struct {
	inner *engineConfig
}

// NewConfig resolves opts against the default configuration, applying
// TIFFENGINE_MAX_CACHE first and then each option in order.
func NewConfig(opts ...EngineOption) (*Config, error) {
	cfg := newEngineConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return &Config{inner: cfg}, nil
}

func (c *Config) MaxCachingMemory() int64  { return c.inner.maxCachingMemory }
func (c *Config) BigTIFF() bool            { return c.inner.bigTiff }
func (c *Config) LittleEndian() bool       { return c.inner.littleEndian }
func (c *Config) RequireValidTiff() bool   { return c.inner.requireValidTiff }
func (c *Config) DirectCopy() bool         { return c.inner.directCopy }
