package config

import (
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/chazu/tacit/pkg/haptic"
	"github.com/chazu/tacit/pkg/kernel/marching"
	"github.com/chazu/tacit/pkg/voxel"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := Config{
		Resolution:      80,
		PlayAreaSize:    2,
		BaseShape:       voxel.ShapeSphere,
		ShapeSize:       0.5,
		ToolRadius:      4,
		Strategy:        marching.Cubes,
		ExtractWorkers:  1,
		MaxChunkVerts:   30000,
		HapticThrottle:  10,
		NearThreshold:   0.4,
		HapticMapping:   haptic.Inverse,
		InsideMagnitude: 200,
		LogLevel:        "info",
	}
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadEnvThenFlags(t *testing.T) {
	t.Setenv("TACIT_RESOLUTION", "40")
	t.Setenv("TACIT_BASE_SHAPE", "cube")
	t.Setenv("TACIT_STRATEGY", "tetrahedra")
	t.Setenv("TACIT_HAPTIC_MAPPING", "direct")

	cfg, err := Load(newFlagSet(), []string{"-resolution", "24", "-shape-size", "1.5"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Resolution != 24 {
		t.Errorf("resolution: got %d, want flag value 24", cfg.Resolution)
	}
	if cfg.ShapeSize != 1.5 {
		t.Errorf("shape size: got %g, want 1.5", cfg.ShapeSize)
	}
	if cfg.BaseShape != voxel.ShapeCube {
		t.Errorf("shape: got %v, want env value cube", cfg.BaseShape)
	}
	if cfg.Strategy != marching.Tetrahedra {
		t.Errorf("strategy: got %v, want tetrahedra", cfg.Strategy)
	}
	if cfg.HapticMapping != haptic.Direct {
		t.Errorf("mapping: got %v, want direct", cfg.HapticMapping)
	}
}

func TestLoadTextFlags(t *testing.T) {
	cfg, err := Load(newFlagSet(), []string{"-shape", "cube", "-strategy", "tetra", "-mapping", "direct"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseShape != voxel.ShapeCube || cfg.Strategy != marching.Tetrahedra || cfg.HapticMapping != haptic.Direct {
		t.Fatalf("got %v/%v/%v", cfg.BaseShape, cfg.Strategy, cfg.HapticMapping)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("TACIT_RESOLUTION", "many")
	_, err := Load(nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvRejectsUnknownShape(t *testing.T) {
	t.Setenv("TACIT_BASE_SHAPE", "torus")
	if _, err := Load(nil, nil); err == nil {
		t.Fatal("expected error for unknown shape")
	}
}

func TestValidate(t *testing.T) {
	base, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"resolution", func(c *Config) { c.Resolution = 0 }, "resolution"},
		{"play area", func(c *Config) { c.PlayAreaSize = -1 }, "play area"},
		{"tool radius", func(c *Config) { c.ToolRadius = -2 }, "tool radius"},
		{"workers", func(c *Config) { c.ExtractWorkers = 0 }, "extract workers"},
		{"chunk", func(c *Config) { c.MaxChunkVerts = 2 }, "max chunk verts"},
		{"throttle", func(c *Config) { c.HapticThrottle = 0 }, "haptic throttle"},
		{"near", func(c *Config) { c.NearThreshold = 0 }, "near threshold"},
		{"magnitude", func(c *Config) { c.InsideMagnitude = 256 }, "inside magnitude"},
		{"mapping", func(c *Config) { c.HapticMapping = haptic.Mapping(9) }, "haptic mapping"},
		{"strategy", func(c *Config) { c.Strategy = marching.Strategy(9) }, "strategy"},
		{"log level", func(c *Config) { c.LogLevel = "chatty" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg, err := Load(nil, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.ExtractWorkers = 0
	cfg.HapticThrottle = 0
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"extract workers", "haptic throttle"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("got %v, missing %q", err, want)
		}
	}
}

func TestVoxelSpec(t *testing.T) {
	cfg := Config{Resolution: 12, PlayAreaSize: 3, BaseShape: voxel.ShapeCube, ShapeSize: 1}
	got := cfg.VoxelSpec()
	want := voxel.Spec{Resolution: 12, PlayAreaSize: 3, Shape: voxel.ShapeCube, ShapeSize: 1}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
