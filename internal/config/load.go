// Package config loads and validates the orchestrator's YAML configuration
// document: directory layout, tick cadence, mailer and hygiene settings, and
// the ordered step list that becomes the Pipeline Engine's DAG.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/fenwicklabs/pipeline-orchestrator/internal/orcherr"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/paths"
	"github.com/fenwicklabs/pipeline-orchestrator/internal/pipeline"
)

//go:embed schema/config.schema.json
var schemaBytes []byte

const schemaURL = "config.schema.json"

// Config is the normalized, validated runtime configuration. Every field a
// component needs is already in its native type; nothing downstream parses
// strings again.
type Config struct {
	Paths              paths.Paths
	TickInterval       time.Duration
	GlobalParallelism  int
	MailerExecutable   string
	MailerArgsTemplate []string
	HygienePatterns    []string
	HygieneGrace       time.Duration
	HeartbeatMinute    int
	Steps              []pipeline.Step
	Fingerprint        string
}

// Load reads, schema-validates, normalizes, and semantically validates the
// configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, orcherr.ConfigError(fmt.Sprintf("reading config file: %s", err)).Build()
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, orcherr.ConfigError(fmt.Sprintf("parsing YAML: %s", err)).Build()
	}

	cfg, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	if err := validateSemantics(cfg); err != nil {
		return nil, err
	}

	fp, err := fingerprint(cfg.Steps)
	if err != nil {
		return nil, orcherr.ConfigError(fmt.Sprintf("fingerprinting config: %s", err)).Build()
	}
	cfg.Fingerprint = fp

	return cfg, nil
}

func validateSchema(data []byte) error {
	var schemaDoc interface{}
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return orcherr.InternalError(fmt.Sprintf("embedded config schema is invalid: %s", err)).Build()
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, schemaDoc); err != nil {
		return orcherr.InternalError(fmt.Sprintf("loading embedded config schema: %s", err)).Build()
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return orcherr.InternalError(fmt.Sprintf("compiling embedded config schema: %s", err)).Build()
	}

	var instance interface{}
	if err := yaml.Unmarshal(data, &instance); err != nil {
		return orcherr.ConfigError(fmt.Sprintf("parsing YAML: %s", err)).Build()
	}
	instance = jsonify(instance)

	if err := schema.Validate(instance); err != nil {
		return orcherr.ConfigError(fmt.Sprintf("config failed schema validation: %s", err)).Build()
	}
	return nil
}

// jsonify recursively copies the map[string]interface{} and []interface{}
// values yaml.v3 produces for the schema validator; any other value
// (including a map[interface{}]interface{}) is passed through unchanged.
func jsonify(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = jsonify(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = jsonify(item)
		}
		return out
	default:
		return val
	}
}

func normalize(raw rawDocument) (*Config, error) {
	if raw.RootDir == "" || raw.StateDir == "" || raw.LogDir == "" {
		return nil, orcherr.ConfigError("root_dir, state_dir, and log_dir are all required").Build()
	}

	tick := 30 * time.Second
	if raw.TickInterval != "" {
		parsed, err := time.ParseDuration(raw.TickInterval)
		if err != nil {
			return nil, orcherr.ConfigError(fmt.Sprintf("invalid tick_interval %q: %s", raw.TickInterval, err)).Build()
		}
		tick = parsed
	}

	parallelism := 2
	if raw.GlobalParallelism != nil {
		if *raw.GlobalParallelism < 1 {
			return nil, orcherr.ConfigError(fmt.Sprintf("global_parallelism must be >= 1, got %d", *raw.GlobalParallelism)).Build()
		}
		parallelism = *raw.GlobalParallelism
	}

	grace := 5 * time.Second
	if raw.ProcessHygieneGraceSeconds > 0 {
		grace = time.Duration(raw.ProcessHygieneGraceSeconds) * time.Second
	}

	heartbeatMinute := 8 * 60
	if raw.HeartbeatAt != "" {
		parsed, err := parseTimeOfDay(raw.HeartbeatAt)
		if err != nil {
			return nil, orcherr.ConfigError(fmt.Sprintf("invalid heartbeat_at %q: %s", raw.HeartbeatAt, err)).Build()
		}
		heartbeatMinute = parsed
	}

	steps := make([]pipeline.Step, 0, len(raw.Steps))
	for _, rs := range raw.Steps {
		step, err := normalizeStep(rs)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return &Config{
		Paths:              paths.New(raw.RootDir, raw.StateDir, raw.LogDir),
		TickInterval:       tick,
		GlobalParallelism:  parallelism,
		MailerExecutable:   raw.MailerExecutable,
		MailerArgsTemplate: raw.MailerArgsTemplate,
		HygienePatterns:    raw.ProcessHygiene.Patterns,
		HygieneGrace:       grace,
		HeartbeatMinute:    heartbeatMinute,
		Steps:              steps,
	}, nil
}

// validateSemantics applies the rejection rules that the schema cannot
// express on its own: DAG shape, unknown dependency names, missing step
// executables, and a writable state directory.
func validateSemantics(cfg *Config) error {
	if err := pipeline.ValidateDAG(cfg.Steps); err != nil {
		return orcherr.ConfigError(fmt.Sprintf("invalid step graph: %s", err)).Build()
	}

	for _, s := range cfg.Steps {
		if s.Action == pipeline.RunExecutable && s.Executable == "" {
			return orcherr.ConfigError(fmt.Sprintf("step %q: executable is required for run_executable steps", s.Name)).Build()
		}
		if s.Executable != "" {
			if _, err := os.Stat(s.Executable); err != nil {
				return orcherr.ConfigError(fmt.Sprintf("step %q: executable %q is not reachable: %s", s.Name, s.Executable, err)).Build()
			}
		}
	}

	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return orcherr.StateIOError(fmt.Sprintf("state_dir %q is not writable: %s", cfg.Paths.StateDir, err)).Fatal().Build()
	}
	probeFile := filepath.Join(cfg.Paths.StateDir, ".write-probe")
	if err := os.WriteFile(probeFile, []byte("ok"), 0o644); err != nil {
		return orcherr.StateIOError(fmt.Sprintf("state_dir %q is not writable: %s", cfg.Paths.StateDir, err)).Fatal().Build()
	}
	_ = os.Remove(probeFile)

	return nil
}

func fingerprint(steps []pipeline.Step) (string, error) {
	h, err := hashstructure.Hash(steps, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h), nil
}
