// Package config loads runtime settings from the environment and command
// line flags.
package config

import (
	"errors"
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/chazu/tacit/pkg/haptic"
	"github.com/chazu/tacit/pkg/kernel/marching"
	"github.com/chazu/tacit/pkg/voxel"
	"github.com/sirupsen/logrus"
)

// Config holds every tunable of a sculpting session.
type Config struct {
	Resolution   int         `env:"TACIT_RESOLUTION" envDefault:"80"`
	PlayAreaSize float64     `env:"TACIT_PLAY_AREA" envDefault:"2.0"`
	BaseShape    voxel.Shape `env:"TACIT_BASE_SHAPE" envDefault:"sphere"`
	ShapeSize    float64     `env:"TACIT_SHAPE_SIZE" envDefault:"0.5"`
	ToolRadius   int         `env:"TACIT_TOOL_RADIUS" envDefault:"4"`

	Strategy       marching.Strategy `env:"TACIT_STRATEGY" envDefault:"cubes"`
	ExtractWorkers int               `env:"TACIT_EXTRACT_WORKERS" envDefault:"1"`
	MaxChunkVerts  int               `env:"TACIT_MAX_CHUNK_VERTS" envDefault:"30000"`

	HapticThrottle  int            `env:"TACIT_HAPTIC_THROTTLE" envDefault:"10"`
	NearThreshold   float64        `env:"TACIT_NEAR_THRESHOLD" envDefault:"0.4"`
	HapticMapping   haptic.Mapping `env:"TACIT_HAPTIC_MAPPING" envDefault:"inverse"`
	InsideMagnitude int            `env:"TACIT_INSIDE_MAGNITUDE" envDefault:"200"`

	LogLevel     string `env:"TACIT_LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"TACIT_OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads the environment into a Config, then lets flags in args
// override it. fs may be nil when there are no flags to parse.
func Load(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if fs != nil {
		cfg.RegisterFlags(fs)
		if args == nil {
			args = []string{}
		}
		if err := fs.Parse(args); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RegisterFlags binds flags to cfg's fields, using the current values as
// defaults.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.Resolution, "resolution", c.Resolution, "voxel grid resolution per axis")
	fs.Float64Var(&c.PlayAreaSize, "play-area", c.PlayAreaSize, "play area edge length")
	fs.TextVar(&c.BaseShape, "shape", c.BaseShape, "base shape: cube or sphere")
	fs.Float64Var(&c.ShapeSize, "shape-size", c.ShapeSize, "base shape edge or diameter")
	fs.IntVar(&c.ToolRadius, "tool-radius", c.ToolRadius, "tool radius in grid cells")
	fs.TextVar(&c.Strategy, "strategy", c.Strategy, "surface extraction: cubes or tetrahedra")
	fs.IntVar(&c.ExtractWorkers, "workers", c.ExtractWorkers, "parallel extraction slabs")
	fs.IntVar(&c.MaxChunkVerts, "max-chunk-verts", c.MaxChunkVerts, "vertex cap per exported chunk")
	fs.IntVar(&c.HapticThrottle, "haptic-throttle", c.HapticThrottle, "ticks between glove messages")
	fs.Float64Var(&c.NearThreshold, "near", c.NearThreshold, "distance separating outside from far outside")
	fs.TextVar(&c.HapticMapping, "mapping", c.HapticMapping, "outside magnitude mapping: inverse or direct")
	fs.IntVar(&c.InsideMagnitude, "inside-magnitude", c.InsideMagnitude, "inside token magnitude 0..255")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP/HTTP endpoint; empty disables tracing")
}

// Validate reports every problem with the configuration.
func (c Config) Validate() error {
	var errs []error
	if err := c.VoxelSpec().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.ToolRadius < 0 {
		errs = append(errs, fmt.Errorf("tool radius must not be negative, got %d", c.ToolRadius))
	}
	if c.Strategy != marching.Cubes && c.Strategy != marching.Tetrahedra {
		errs = append(errs, fmt.Errorf("unknown strategy %v", c.Strategy))
	}
	if c.ExtractWorkers < 1 {
		errs = append(errs, fmt.Errorf("extract workers must be at least 1, got %d", c.ExtractWorkers))
	}
	if c.MaxChunkVerts < 3 {
		errs = append(errs, fmt.Errorf("max chunk verts must be at least 3, got %d", c.MaxChunkVerts))
	}
	if c.HapticThrottle < 1 {
		errs = append(errs, fmt.Errorf("haptic throttle must be at least 1, got %d", c.HapticThrottle))
	}
	if c.NearThreshold <= 0 {
		errs = append(errs, fmt.Errorf("near threshold must be positive, got %g", c.NearThreshold))
	}
	if c.HapticMapping != haptic.Inverse && c.HapticMapping != haptic.Direct {
		errs = append(errs, fmt.Errorf("unknown haptic mapping %v", c.HapticMapping))
	}
	if c.InsideMagnitude < 0 || c.InsideMagnitude > haptic.MaxMagnitude {
		errs = append(errs, fmt.Errorf("inside magnitude must be within 0..%d, got %d", haptic.MaxMagnitude, c.InsideMagnitude))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// VoxelSpec returns the field layout described by c.
func (c Config) VoxelSpec() voxel.Spec {
	return voxel.Spec{
		Resolution:   c.Resolution,
		PlayAreaSize: c.PlayAreaSize,
		Shape:        c.BaseShape,
		ShapeSize:    c.ShapeSize,
	}
}
