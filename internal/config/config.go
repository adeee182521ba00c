package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/paularlott/cli"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

const (
	DefaultDataDir           = "./data"
	DefaultListenAddr        = ":8080"
	DefaultPageSize          = 50
	DefaultMaxPageSize       = 1000
	DefaultReconcileSchedule = "@every 1h"
	DefaultWorkers           = 2

	// ScheduleOff disables the VRF reconcile job.
	ScheduleOff = "off"
)

// Config holds the application configuration
type Config struct {
	DataDir           string        `yaml:"data_dir"`
	ListenAddr        string        `yaml:"listen_addr"`
	APIToken          string        `yaml:"api_token"`
	MCPToken          string        `yaml:"mcp_token"`
	Tokens            []TokenConfig `yaml:"tokens"`
	PageSize          int           `yaml:"page_size"`
	MaxPageSize       int           `yaml:"max_page_size"`
	ReconcileSchedule string        `yaml:"reconcile_schedule"`
	Workers           int           `yaml:"workers"`
	ConfigFile        string        `yaml:"-"` // Path to the YAML file (if loaded)
}

// TokenConfig maps one API token to the permissions of its holder. Either
// Token or TokenHash (bcrypt) is set.
type TokenConfig struct {
	Name         string   `yaml:"name"`
	Token        string   `yaml:"token"`
	TokenHash    string   `yaml:"token_hash"`
	Actions      []string `yaml:"actions"`
	VRFs         []int64  `yaml:"vrfs"`
	DeniedFields []string `yaml:"denied_fields"`
}

// Permission returns the permission granted by the token. A token without
// actions may only view.
func (t TokenConfig) Permission() model.Permission {
	actions := t.Actions
	if len(actions) == 0 {
		actions = []string{model.ActionView}
	}
	return model.Permission{
		Actions:      slices.Clone(actions),
		VRFIDs:       slices.Clone(t.VRFs),
		DeniedFields: slices.Clone(t.DeniedFields),
	}
}

// GetFlags returns the flags shared by every command that needs the
// configuration.
func GetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML configuration file",
			EnvVars: []string{"IMPACTS_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Usage:   "Data directory path (default " + DefaultDataDir + ")",
			EnvVars: []string{"IMPACTS_DATA_DIR"},
		},
		&cli.StringFlag{
			Name:    "listen-addr",
			Aliases: []string{"addr"},
			Usage:   "Server listen address (default " + DefaultListenAddr + ")",
			EnvVars: []string{"IMPACTS_LISTEN_ADDR"},
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "API bearer token granting full access",
			EnvVars: []string{"IMPACTS_API_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "mcp-token",
			Usage:   "MCP bearer token",
			EnvVars: []string{"IMPACTS_MCP_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "page-size",
			Usage:   "Default page size of list endpoints",
			EnvVars: []string{"IMPACTS_PAGE_SIZE"},
		},
		&cli.StringFlag{
			Name:    "reconcile-schedule",
			Usage:   "Cron spec of the VRF reconcile job, or \"off\"",
			EnvVars: []string{"IMPACTS_RECONCILE_SCHEDULE"},
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Background worker count",
			EnvVars: []string{"IMPACTS_WORKERS"},
		},
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Command-line flags
// 2. Environment variables (and .env, loaded at startup)
// 3. YAML configuration file
// 4. Default values
func Load(cmd *cli.Command) (*Config, error) {
	return Resolve(&Config{
		ConfigFile:        cmd.GetString("config"),
		DataDir:           cmd.GetString("data-dir"),
		ListenAddr:        cmd.GetString("listen-addr"),
		APIToken:          cmd.GetString("api-token"),
		MCPToken:          cmd.GetString("mcp-token"),
		PageSize:          cmd.GetInt("page-size"),
		ReconcileSchedule: cmd.GetString("reconcile-schedule"),
		Workers:           cmd.GetInt("workers"),
	})
}

// Resolve layers opts (flags and environment, zero values meaning unset)
// over the YAML file named by opts.ConfigFile and the defaults.
func Resolve(opts *Config) (*Config, error) {
	cfg := &Config{}

	if opts.ConfigFile != "" {
		if err := loadFromFile(cfg, opts.ConfigFile); err != nil {
			return nil, err
		}
		cfg.ConfigFile = opts.ConfigFile
	}

	cfg.DataDir = coalesce(opts.DataDir, cfg.DataDir, DefaultDataDir)
	cfg.ListenAddr = coalesce(opts.ListenAddr, cfg.ListenAddr, DefaultListenAddr)
	cfg.APIToken = coalesce(opts.APIToken, cfg.APIToken)
	cfg.MCPToken = coalesce(opts.MCPToken, cfg.MCPToken)
	cfg.ReconcileSchedule = coalesce(opts.ReconcileSchedule, cfg.ReconcileSchedule, DefaultReconcileSchedule)
	cfg.PageSize = firstPositive(opts.PageSize, cfg.PageSize, DefaultPageSize)
	cfg.MaxPageSize = firstPositive(opts.MaxPageSize, cfg.MaxPageSize, DefaultMaxPageSize)
	cfg.Workers = firstPositive(opts.Workers, cfg.Workers, DefaultWorkers)
	if len(opts.Tokens) > 0 {
		cfg.Tokens = opts.Tokens
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", filename, err)
	}
	return nil
}

// Validate checks tokens and the reconcile schedule.
func (c *Config) Validate() error {
	if c.PageSize > c.MaxPageSize {
		return fmt.Errorf("page_size %d exceeds max_page_size %d", c.PageSize, c.MaxPageSize)
	}

	if c.ReconcileEnabled() {
		if _, err := cron.ParseStandard(c.ReconcileSchedule); err != nil {
			return fmt.Errorf("invalid reconcile_schedule %q: %w", c.ReconcileSchedule, err)
		}
	}

	names := map[string]bool{}
	for i, t := range c.Tokens {
		if t.Name == "" {
			return fmt.Errorf("token %d: name is required", i+1)
		}
		if names[t.Name] {
			return fmt.Errorf("token %s: duplicate name", t.Name)
		}
		names[t.Name] = true

		if (t.Token == "") == (t.TokenHash == "") {
			return fmt.Errorf("token %s: exactly one of token and token_hash is required", t.Name)
		}
		for _, a := range t.Actions {
			if !slices.Contains(model.AllActions, a) {
				return fmt.Errorf("token %s: unknown action %q", t.Name, a)
			}
		}
		for _, f := range t.DeniedFields {
			if !slices.Contains(bulkFields, f) {
				return fmt.Errorf("token %s: unknown field %q", t.Name, f)
			}
		}
	}
	return nil
}

var bulkFields = []string{
	model.FieldImpact, model.FieldDescription, model.FieldRedundancy,
	model.FieldDevice, model.FieldIPAddress, model.FieldVM,
}

// IsAPIAuthEnabled reports whether API requests must authenticate
func (c *Config) IsAPIAuthEnabled() bool {
	return c.APIToken != "" || len(c.Tokens) > 0
}

// IsMCPEnabled checks if MCP authentication is configured
func (c *Config) IsMCPEnabled() bool {
	return c.MCPToken != ""
}

// ReconcileEnabled reports whether the VRF reconcile job should run
func (c *Config) ReconcileEnabled() bool {
	return c.ReconcileSchedule != "" && !strings.EqualFold(c.ReconcileSchedule, ScheduleOff)
}

// String returns a string representation of the config source
func (c *Config) String() string {
	if c.ConfigFile != "" {
		return fmt.Sprintf("config file (%s)", c.ConfigFile)
	}
	return "flags and environment variables"
}

// coalesce returns the first non-empty string value
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
