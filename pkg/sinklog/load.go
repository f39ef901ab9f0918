package sinklog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/pkg/backends"
	"github.com/wayneeseguin/sinklog/pkg/features"
	"github.com/wayneeseguin/sinklog/pkg/formatters"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Configuration file formats
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// FileConfig is the on-disk form of a logger configuration.
//
//	name: app
//	level: info
//	async: true
//	overflow: drop-oldest
//	worker_interval: 100ms   # -1 waits without a timeout, 0 yields
//	formatter: {type: pattern, pattern: "[%l] %q"}
//	flush: {triggers: [levelled, timed], level: warning, interval: 1s}
//	sinks:
//	  - type: stdout
//	    color: auto
//	  - type: rotating
//	    path: /var/log/app.log
//	    rotation:
//	      policies: [{type: size, max_bytes: 10485760}, {type: daily, hour: 0}]
//	      max_files: 7
//	      compress: true
type FileConfig struct {
	Name           string          `koanf:"name"`
	Level          string          `koanf:"level"`
	Async          bool            `koanf:"async"`
	QueueCapacity  int             `koanf:"queue_capacity"`
	WorkerInterval time.Duration   `koanf:"worker_interval"`
	Overflow       string          `koanf:"overflow"`
	BlockTimeout   time.Duration   `koanf:"block_timeout"`
	Shutdown       string          `koanf:"shutdown"`
	IsolatedLevels []string        `koanf:"isolated_levels"`
	Flush          FlushConfig     `koanf:"flush"`
	Formatter      FormatterConfig `koanf:"formatter"`
	Sinks          []SinkConfig    `koanf:"sinks"`
}

// FlushConfig describes the flush policy. Triggers are instant, timed,
// filled, levelled or manual; custom triggers need WithFlushPolicy. Leaving
// triggers out keeps the triggers of DefaultFlushPolicy.
type FlushConfig struct {
	Triggers []string      `koanf:"triggers"`
	Interval time.Duration `koanf:"interval"`
	Level    string        `koanf:"level"`
}

// FormatterConfig selects a formatter from the formatters.Factory
type FormatterConfig struct {
	Type    string   `koanf:"type"`
	Pattern string   `koanf:"pattern"`
	Indent  int      `koanf:"indent"`
	Fields  []string `koanf:"fields"`
	UTC     bool     `koanf:"utc"`
}

// SinkConfig describes one sink. Type is stdout, stderr, file, rotating or
// lumberjack.
type SinkConfig struct {
	Type                string           `koanf:"type"`
	Path                string           `koanf:"path"`
	Mode                string           `koanf:"mode"`
	Color               string           `koanf:"color"`
	Lock                *bool            `koanf:"lock"`
	BufferSize          int              `koanf:"buffer_size"`
	ConcludeWithNewline bool             `koanf:"conclude_with_newline"`
	ExcludedLevels      []string         `koanf:"excluded_levels"`
	Formatter           *FormatterConfig `koanf:"formatter"`
	Rotation            RotationConfig   `koanf:"rotation"`
	Lumberjack          LumberjackConfig `koanf:"lumberjack"`
}

// RotationConfig configures the RotationManager of a rotating sink
type RotationConfig struct {
	Policies   []PolicyConfig `koanf:"policies"`
	Strategy   string         `koanf:"strategy"` // pattern or numbered
	Pattern    string         `koanf:"pattern"`
	MaxFiles   int            `koanf:"max_files"`
	Compress   bool           `koanf:"compress"`
	Behaviour  string         `koanf:"behaviour"` // numbered only: compress, move or delete
	UTC        bool           `koanf:"utc"`
	Retries    uint           `koanf:"retries"`
	RetryDelay time.Duration  `koanf:"retry_delay"`
	OnError    string         `koanf:"on_error"` // continue or propagate
}

// PolicyConfig describes one rotation policy. Type is size, daily,
// periodic, schedule or disabled.
type PolicyConfig struct {
	Type            string        `koanf:"type"`
	MaxBytes        int64         `koanf:"max_bytes"`
	CountTriggering bool          `koanf:"count_triggering"`
	Hour            int           `koanf:"hour"`
	Minute          int           `koanf:"minute"`
	UTC             bool          `koanf:"utc"`
	Interval        time.Duration `koanf:"interval"`
	SeedFromFile    bool          `koanf:"seed_from_file"`
	Spec            string        `koanf:"spec"`
}

// LumberjackConfig configures a lumberjack sink
type LumberjackConfig struct {
	MaxSizeMB  int  `koanf:"max_size_mb"`
	MaxBackups int  `koanf:"max_backups"`
	MaxAgeDays int  `koanf:"max_age_days"`
	Compress   bool `koanf:"compress"`
	LocalTime  bool `koanf:"local_time"`
}

// DefaultFileConfig returns the values used for keys a file leaves out
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		Level:          DefaultLevel.String(),
		QueueCapacity:  defaultQueueCapacity(),
		WorkerInterval: DefaultWorkerInterval,
		Overflow:       OverflowBlock.String(),
		BlockTimeout:   DefaultBlockTimeout,
		Shutdown:       ShutdownDrain.String(),
		Flush: FlushConfig{
			Interval: DefaultFlushInterval,
			Level:    types.SeverityWarning.String(),
		},
		Formatter: FormatterConfig{Type: formatters.NamePattern},
	}
}

// LoadConfig reads a YAML (.yaml, .yml) or JSON (.json) configuration file
func LoadConfig(path string) (*FileConfig, error) {
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewLogError(types.ErrInvalidConfig, "config", path, "reading file", err)
	}
	return ParseConfig(data, format)
}

// ParseConfig parses configuration data in the given format
func ParseConfig(data []byte, format string) (*FileConfig, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", types.ErrInvalidConfig, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, types.NewLogError(types.ErrInvalidConfig, "config", "", "parsing "+format, err)
		}
	}

	fc := DefaultFileConfig()
	if err := k.UnmarshalWithConf("", fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, types.NewLogError(types.ErrInvalidConfig, "config", "", "decoding", err)
	}
	return fc, nil
}

func detectFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown config extension %q", types.ErrInvalidConfig, ext)
	}
}

// NewFromConfigFile loads path and builds a logger from it. opts are applied
// after the file, so they override it. A file without a name uses the file's
// base name.
func NewFromConfigFile(path string, opts ...Option) (*Logger, error) {
	fc, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if fc.Name == "" {
		base := filepath.Base(path)
		fc.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	cfg, err := fc.Build()
	if err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, multierr.Append(err, closeAttachments(cfg.Sinks))
		}
	}

	l, err := NewWithConfig(cfg)
	if err != nil {
		return nil, multierr.Append(err, closeAttachments(cfg.Sinks))
	}
	return l, nil
}

// Build turns the file configuration into a Config, opening every sink. On
// error the sinks opened so far are closed again.
func (fc *FileConfig) Build() (*Config, error) {
	cfg := DefaultConfig()
	cfg.Name = fc.Name
	cfg.Async = fc.Async
	cfg.QueueCapacity = fc.QueueCapacity
	cfg.WorkerInterval = fc.WorkerInterval
	cfg.BlockTimeout = fc.BlockTimeout

	var err error
	if cfg.Level, err = types.ParseSeverity(fc.Level); err != nil {
		return nil, err
	}
	if cfg.Overflow, err = ParseOverflowPolicy(fc.Overflow); err != nil {
		return nil, err
	}
	if cfg.Shutdown, err = ParseShutdownMode(fc.Shutdown); err != nil {
		return nil, err
	}
	if cfg.IsolatedLevels, err = types.ParseMask(fc.IsolatedLevels); err != nil {
		return nil, err
	}
	if cfg.Flush, err = fc.Flush.build(); err != nil {
		return nil, err
	}

	factory := formatters.NewFactory()
	if cfg.Formatter, err = buildFormatter(factory, fc.Formatter); err != nil {
		return nil, err
	}

	for i, sc := range fc.Sinks {
		a, err := buildAttachment(factory, sc)
		if err != nil {
			err = fmt.Errorf("sink %d (%s): %w", i, sc.Type, err)
			return nil, multierr.Append(err, closeAttachments(cfg.Sinks))
		}
		cfg.Sinks = append(cfg.Sinks, a)
	}
	return cfg, nil
}

func (c FlushConfig) build() (FlushPolicy, error) {
	if c.Triggers == nil {
		c.Triggers = []string{"levelled", "timed"}
	}
	triggers, err := ParseFlushTriggers(c.Triggers)
	if err != nil {
		return FlushPolicy{}, err
	}
	if triggers.Has(FlushCustom) {
		return FlushPolicy{}, fmt.Errorf("%w: custom flush trigger needs WithFlushPolicy", types.ErrInvalidConfig)
	}
	p := FlushPolicy{Triggers: triggers, Interval: c.Interval}
	if c.Level != "" {
		if p.Level, err = types.ParseSeverity(c.Level); err != nil {
			return FlushPolicy{}, err
		}
	}
	return p, p.validate()
}

func closeAttachments(list []SinkAttachment) error {
	var errs error
	for _, a := range list {
		errs = multierr.Append(errs, a.Sink.Close())
	}
	return errs
}

func buildFormatter(factory *formatters.Factory, fc FormatterConfig) (types.Formatter, error) {
	return factory.Create(strings.ToLower(fc.Type), formatters.Spec{
		Pattern: fc.Pattern,
		Indent:  fc.Indent,
		Fields:  fc.Fields,
		UTC:     fc.UTC,
	})
}

func buildAttachment(factory *formatters.Factory, sc SinkConfig) (SinkAttachment, error) {
	var a SinkAttachment
	excluded, err := types.ParseMask(sc.ExcludedLevels)
	if err != nil {
		return a, err
	}
	a.Excluded = excluded

	if sc.Formatter != nil {
		if a.Formatter, err = buildFormatter(factory, *sc.Formatter); err != nil {
			return a, err
		}
	}

	a.Sink, err = buildSink(sc)
	return a, err
}

func buildSink(sc SinkConfig) (types.Sink, error) {
	kind := strings.ToLower(sc.Type)
	switch kind {
	case "stdout", "stderr":
		mode, err := backends.ParseColorMode(sc.Color)
		if err != nil {
			return nil, err
		}
		if kind == "stdout" {
			return backends.NewStdoutSink(mode), nil
		}
		return backends.NewStderrSink(mode), nil

	case "file", "rotating":
		if sc.Path == "" {
			return nil, fmt.Errorf("%w: %s sink needs a path", types.ErrInvalidConfig, kind)
		}
		opts, err := fileOptions(sc)
		if err != nil {
			return nil, err
		}
		if kind == "file" {
			return backends.NewFileSink(sc.Path, opts...)
		}
		manager, err := buildRotation(sc.Rotation)
		if err != nil {
			return nil, err
		}
		return backends.NewRotatingFileSink(sc.Path, manager, opts...)

	case "lumberjack":
		if sc.Path == "" {
			return nil, fmt.Errorf("%w: lumberjack sink needs a path", types.ErrInvalidConfig)
		}
		return backends.NewLumberjackSink(sc.Path, backends.LumberjackOptions{
			MaxSizeMB:  sc.Lumberjack.MaxSizeMB,
			MaxBackups: sc.Lumberjack.MaxBackups,
			MaxAgeDays: sc.Lumberjack.MaxAgeDays,
			Compress:   sc.Lumberjack.Compress,
			LocalTime:  sc.Lumberjack.LocalTime,
		}), nil
	}
	return nil, fmt.Errorf("%w: unknown sink type %q", types.ErrInvalidConfig, sc.Type)
}

func fileOptions(sc SinkConfig) ([]backends.FileOption, error) {
	mode, err := backends.ParseFileMode(sc.Mode)
	if err != nil {
		return nil, err
	}
	opts := []backends.FileOption{
		backends.WithMode(mode),
		backends.WithConcludeWithNewline(sc.ConcludeWithNewline),
	}
	if sc.Lock != nil {
		opts = append(opts, backends.WithLock(*sc.Lock))
	}
	if sc.BufferSize > 0 {
		opts = append(opts, backends.WithBufferSize(sc.BufferSize))
	}
	return opts, nil
}

func buildRotation(rc RotationConfig) (*features.RotationManager, error) {
	policy, err := buildPolicies(rc.Policies)
	if err != nil {
		return nil, err
	}

	var strategy types.RotationStrategy
	switch strings.ToLower(rc.Strategy) {
	case "", "pattern":
		s := features.NewPatternStrategy(rc.Pattern)
		s.MaxFiles = rc.MaxFiles
		s.Compress = rc.Compress
		s.UTC = rc.UTC
		strategy = s
	case "numbered":
		behaviour, err := features.ParseArchiveBehaviour(rc.Behaviour)
		if err != nil {
			return nil, err
		}
		maxFiles := rc.MaxFiles
		if maxFiles <= 0 {
			maxFiles = features.DefaultMaxFiles
		}
		strategy = features.NewNumberedStrategy(maxFiles, behaviour)
	default:
		return nil, fmt.Errorf("%w: unknown rotation strategy %q", types.ErrInvalidConfig, rc.Strategy)
	}

	failure, err := features.ParseRotationFailureMode(rc.OnError)
	if err != nil {
		return nil, err
	}

	manager := features.NewRotationManager(policy, strategy)
	manager.SetFailureMode(failure)
	if rc.Retries > 0 {
		delay := rc.RetryDelay
		if delay <= 0 {
			delay = features.DefaultRotationRetryDelay
		}
		manager.SetRetry(rc.Retries, delay)
	}
	return manager, nil
}

func buildPolicies(list []PolicyConfig) (types.RotationPolicy, error) {
	policies := make([]types.RotationPolicy, 0, len(list))
	for _, pc := range list {
		p, err := buildPolicy(pc)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	switch len(policies) {
	case 0:
		return features.DisabledPolicy{}, nil
	case 1:
		return policies[0], nil
	}
	return features.NewCombinedPolicy(policies...), nil
}

func buildPolicy(pc PolicyConfig) (types.RotationPolicy, error) {
	switch strings.ToLower(pc.Type) {
	case "size":
		p, err := features.NewSizeLimitPolicy(pc.MaxBytes)
		if err != nil {
			return nil, err
		}
		p.CountTriggering = pc.CountTriggering
		return p, nil
	case "daily":
		return features.NewDailyPolicy(pc.Hour, pc.Minute, pc.UTC)
	case "periodic":
		p, err := features.NewPeriodicPolicy(pc.Interval)
		if err != nil {
			return nil, err
		}
		p.SeedFromFile = pc.SeedFromFile
		return p, nil
	case "schedule", "cron":
		return features.NewSchedulePolicy(pc.Spec)
	case "disabled", "none":
		return features.DisabledPolicy{}, nil
	}
	return nil, fmt.Errorf("%w: unknown rotation policy %q", types.ErrInvalidConfig, pc.Type)
}
