// Package config loads tool configuration from YAML, validated against
// an embedded CUE schema before it is bound to Go types. The schema is
// closed: unknown keys are rejected rather than silently ignored.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full tool configuration.
type Config struct {
	Capture CaptureConfig `yaml:"capture"`
	Replay  ReplayConfig  `yaml:"replay"`
}

// CaptureConfig configures trace recording.
type CaptureConfig struct {
	// Output is the trace file path.
	Output string `yaml:"output"`

	// Compress writes the trace through zstd.
	Compress bool `yaml:"compress"`

	// Stacks records a call stack on every call.
	Stacks bool `yaml:"stacks"`

	// StackDepth caps recorded stack depth.
	StackDepth int `yaml:"stack_depth"`
}

// ReplayConfig configures trace playback.
type ReplayConfig struct {
	// Speed scales pacing; 0 disables it.
	Speed float64 `yaml:"speed"`

	// Strict stops replay at the first divergence.
	Strict bool `yaml:"strict"`

	// Device overrides the recorded device name, "" keeps it.
	Device string `yaml:"device"`
}

// Default returns the configuration used when a field (or the whole
// file) is absent.
func Default() Config {
	return Config{
		Capture: CaptureConfig{
			Output:     "audiotap.trace",
			StackDepth: 16,
		},
		Replay: ReplayConfig{
			Speed: 1,
		},
	}
}

// ValidationError is a schema violation in a config file.
type ValidationError struct {
	Path    string // file path, "" when parsing bytes
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// Parse validates YAML bytes against the schema and binds them over
// the defaults.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	return &cfg, nil
}

// validate unifies the raw document with the closed #Config definition.
func validate(raw map[string]any) error {
	if raw == nil {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(false)); err != nil {
		return &ValidationError{Message: cueerrors.Details(err, nil)}
	}
	return nil
}
