package bucketcache

import (
	"time"

	"github.com/nireo/bucketcache/engine"
	"github.com/nireo/bucketcache/internal/fs"
	"github.com/nireo/bucketcache/internal/resource"
)

// EngineName selects which byte-store backs the cache.
type EngineName = engine.Name

const (
	EngineHeap    = engine.NameHeap
	EngineOffheap = engine.NameOffheap
	EngineFile    = engine.NameFile
)

// Default tunables, matching the source cache's constants.
const (
	DefaultWriterThreads    = 3
	DefaultQueueCapacity    = 64
	DefaultIOErrorTolerance = 60 * time.Second
	DefaultQueueWait        = 50 * time.Millisecond
	DefaultStatsInterval    = 3 * time.Minute

	DefaultAcceptFactor    = 0.95
	DefaultMinFactor       = 0.85
	DefaultSingleFactor    = 0.25
	DefaultMultiFactor     = 0.50
	DefaultMemoryFactor    = 0.25
	DefaultExtraFreeFactor = 0.10
)

// Config configures a Cache at construction time.
type Config struct {
	// Engine selects "heap", "offheap", or "file".
	Engine engine.Name
	// Capacity is the total byte-store size; must be > 0 and <= 32 TiB.
	Capacity int64
	// SizeClasses are the strictly increasing, 256-byte-aligned slot
	// sizes buckets are carved into. Defaults to a small four-class
	// vector if left empty.
	SizeClasses []int64
	// BucketCapacity overrides the default bucket size (a power-of-two
	// multiple of the largest size class). Zero picks the default.
	BucketCapacity int64

	// FilePath is required when Engine is "file".
	FilePath string
	// FileSystem overrides the filesystem used by the file engine; nil
	// selects fs.Default. Tests substitute a fault-injecting filesystem
	// here to exercise write/sync failure handling.
	FileSystem fs.FileSystem

	// WriterThreads is the number of writer queues/workers.
	WriterThreads int
	// QueueCapacity bounds each writer queue.
	QueueCapacity int
	// QueueWait is how long a blocking admission waits for queue space.
	QueueWait time.Duration

	// IOErrorTolerance is how long a continuous run of engine failures
	// is tolerated before the cache disables itself.
	IOErrorTolerance time.Duration

	// AcceptFactor/MinFactor/SingleFactor/MultiFactor/MemoryFactor/
	// ExtraFreeFactor tune the eviction engine's targets. Zero selects
	// the package default for that field.
	AcceptFactor    float64
	MinFactor       float64
	SingleFactor    float64
	MultiFactor     float64
	MemoryFactor    float64
	ExtraFreeFactor float64

	// StatsInterval controls how often the periodic stats line is
	// logged. Zero selects the package default; a negative value
	// disables periodic logging (Stats remains callable on demand).
	StatsInterval time.Duration

	// Resources bounds RAM staging heap usage and writer concurrency.
	// Nil disables those limits.
	Resources *resource.Config

	Logger  *Logger
	Metrics MetricsObserver
}

// Option mutates a Config during New.
type Option func(*Config)

// WithLogger overrides the cache's logger.
func WithLogger(l *Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics overrides the cache's MetricsObserver.
func WithMetrics(m MetricsObserver) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithResources bounds RAM staging memory and writer concurrency.
func WithResources(r resource.Config) Option {
	return func(c *Config) { c.Resources = &r }
}

// WithFileSystem overrides the filesystem backing a "file" engine.
func WithFileSystem(f fs.FileSystem) Option {
	return func(c *Config) { c.FileSystem = f }
}

func (c *Config) setDefaults() {
	if len(c.SizeClasses) == 0 {
		c.SizeClasses = []int64{4096, 8192, 16384, 65536}
	}
	if c.WriterThreads <= 0 {
		c.WriterThreads = DefaultWriterThreads
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.QueueWait <= 0 {
		c.QueueWait = DefaultQueueWait
	}
	if c.IOErrorTolerance <= 0 {
		c.IOErrorTolerance = DefaultIOErrorTolerance
	}
	if c.AcceptFactor <= 0 {
		c.AcceptFactor = DefaultAcceptFactor
	}
	if c.MinFactor <= 0 {
		c.MinFactor = DefaultMinFactor
	}
	if c.SingleFactor <= 0 {
		c.SingleFactor = DefaultSingleFactor
	}
	if c.MultiFactor <= 0 {
		c.MultiFactor = DefaultMultiFactor
	}
	if c.MemoryFactor <= 0 {
		c.MemoryFactor = DefaultMemoryFactor
	}
	if c.ExtraFreeFactor <= 0 {
		c.ExtraFreeFactor = DefaultExtraFreeFactor
	}
	if c.StatsInterval == 0 {
		c.StatsInterval = DefaultStatsInterval
	}
	if c.FileSystem == nil {
		c.FileSystem = fs.Default
	}
	if c.Logger == nil {
		c.Logger = NoopLogger()
	}
	if c.Metrics == nil {
		c.Metrics = NoopMetricsObserver{}
	}
}
