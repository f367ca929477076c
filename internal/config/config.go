// Package config loads the shell configuration from an HCL file and
// SIMPLIC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "simplic.hcl"

// Run policies for a second Run while one is active.
const (
	PolicyReject  = "reject"
	PolicyReplace = "replace"
)

// Config holds all shell configuration.
type Config struct {
	ProjectsRoot string `hcl:"projects_root,optional"`
	ListenAddr   string `hcl:"listen_addr,optional"`
	Metrics      *bool  `hcl:"metrics,optional"`
	Watch        *bool  `hcl:"watch,optional"`
	LogLevel     string `hcl:"log_level,optional"`
	LogFormat    string `hcl:"log_format,optional"`

	Tools *Tools `hcl:"tools,block"`
	Jobs  *Jobs  `hcl:"jobs,block"`
}

// Tools locates the external programs the shell drives.
type Tools struct {
	// Interpreter runs and debugs the entry file.
	Interpreter string `hcl:"interpreter,optional"`
	// DebuggerModule is passed as "-m <module>" for debug sessions.
	DebuggerModule string `hcl:"debugger_module,optional"`
	// Packager builds PyToExe projects.
	Packager string `hcl:"packager,optional"`
}

// Jobs tunes the process orchestrator.
type Jobs struct {
	RunPolicy     string `hcl:"run_policy,optional"`
	HistoryChunks int    `hcl:"history_chunks,optional"`
	GracePeriod   string `hcl:"grace_period,optional"`
	KeepFinished  int    `hcl:"keep_finished,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	on := true
	return &Config{
		ProjectsRoot: "projects",
		ListenAddr:   "127.0.0.1:8420",
		Metrics:      &on,
		Watch:        &on,
		LogLevel:     "info",
		LogFormat:    "console",
		Tools: &Tools{
			Interpreter:    "python",
			DebuggerModule: "pdb",
			Packager:       "pyinstaller",
		},
		Jobs: &Jobs{
			RunPolicy:     PolicyReject,
			HistoryChunks: 4096,
			GracePeriod:   "5s",
			KeepFinished:  8,
		},
	}
}

// Load reads the HCL file at path, fills unset fields from Default and applies
// environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	cfg := &Config{}
	if _, err := os.Stat(path); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, diags)
		}
		if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode config %s: %w", path, diags)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	merge(cfg, Default())
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func merge(cfg, def *Config) {
	if cfg.ProjectsRoot == "" {
		cfg.ProjectsRoot = def.ProjectsRoot
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = def.ListenAddr
	}
	if cfg.Metrics == nil {
		cfg.Metrics = def.Metrics
	}
	if cfg.Watch == nil {
		cfg.Watch = def.Watch
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}

	if cfg.Tools == nil {
		cfg.Tools = &Tools{}
	}
	if cfg.Tools.Interpreter == "" {
		cfg.Tools.Interpreter = def.Tools.Interpreter
	}
	if cfg.Tools.DebuggerModule == "" {
		cfg.Tools.DebuggerModule = def.Tools.DebuggerModule
	}
	if cfg.Tools.Packager == "" {
		cfg.Tools.Packager = def.Tools.Packager
	}

	if cfg.Jobs == nil {
		cfg.Jobs = &Jobs{}
	}
	if cfg.Jobs.RunPolicy == "" {
		cfg.Jobs.RunPolicy = def.Jobs.RunPolicy
	}
	if cfg.Jobs.HistoryChunks == 0 {
		cfg.Jobs.HistoryChunks = def.Jobs.HistoryChunks
	}
	if cfg.Jobs.GracePeriod == "" {
		cfg.Jobs.GracePeriod = def.Jobs.GracePeriod
	}
	if cfg.Jobs.KeepFinished == 0 {
		cfg.Jobs.KeepFinished = def.Jobs.KeepFinished
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SIMPLIC_PROJECTS_ROOT"); v != "" {
		cfg.ProjectsRoot = v
	}
	if v := os.Getenv("SIMPLIC_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("SIMPLIC_METRICS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics = &b
		}
	}
	if v := os.Getenv("SIMPLIC_WATCH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Watch = &b
		}
	}
	if v := os.Getenv("SIMPLIC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SIMPLIC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("SIMPLIC_INTERPRETER"); v != "" {
		cfg.Tools.Interpreter = v
	}
	if v := os.Getenv("SIMPLIC_DEBUGGER_MODULE"); v != "" {
		cfg.Tools.DebuggerModule = v
	}
	if v := os.Getenv("SIMPLIC_PACKAGER"); v != "" {
		cfg.Tools.Packager = v
	}
	if v := os.Getenv("SIMPLIC_RUN_POLICY"); v != "" {
		cfg.Jobs.RunPolicy = v
	}
	if v := os.Getenv("SIMPLIC_HISTORY_CHUNKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Jobs.HistoryChunks = n
		}
	}
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.ProjectsRoot == "" {
		return fmt.Errorf("projects_root must not be empty")
	}
	if c.Tools.Interpreter == "" {
		return fmt.Errorf("tools.interpreter must not be empty")
	}
	if c.Tools.Packager == "" {
		return fmt.Errorf("tools.packager must not be empty")
	}
	switch c.Jobs.RunPolicy {
	case PolicyReject, PolicyReplace:
	default:
		return fmt.Errorf("jobs.run_policy must be %q or %q, got %q", PolicyReject, PolicyReplace, c.Jobs.RunPolicy)
	}
	if c.Jobs.HistoryChunks < 0 {
		return fmt.Errorf("jobs.history_chunks cannot be negative")
	}
	if c.Jobs.KeepFinished < 0 {
		return fmt.Errorf("jobs.keep_finished cannot be negative")
	}
	if _, err := c.Grace(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be \"console\" or \"json\", got %q", c.LogFormat)
	}
	return nil
}

// Grace returns the parsed jobs.grace_period.
func (c *Config) Grace() (time.Duration, error) {
	d, err := time.ParseDuration(c.Jobs.GracePeriod)
	if err != nil {
		return 0, fmt.Errorf("jobs.grace_period: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("jobs.grace_period cannot be negative")
	}
	return d, nil
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.Metrics != nil && *c.Metrics
}

// WatchEnabled reports whether the open project is watched for changes.
func (c *Config) WatchEnabled() bool {
	return c.Watch != nil && *c.Watch
}

// ResolveTools replaces bare tool names with their PATH location and returns
// the names it could not resolve. Unresolved tools are left as configured and
// are reported when first used, so commands that never spawn them still work.
func (c *Config) ResolveTools() (missing []string) {
	for _, tool := range []*string{&c.Tools.Interpreter, &c.Tools.Packager} {
		p, err := resolve(*tool)
		if err != nil {
			missing = append(missing, *tool)
			continue
		}
		*tool = p
	}
	return missing
}

func resolve(name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", err
		}
		return name, nil
	}
	return exec.LookPath(name)
}
