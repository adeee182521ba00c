package main

import (
	"context"
	"os"

	"github.com/martinsuchenak/gestion-impacts/cmd/impact"
	"github.com/martinsuchenak/gestion-impacts/cmd/inventory"
	"github.com/martinsuchenak/gestion-impacts/cmd/server"
	"github.com/martinsuchenak/gestion-impacts/cmd/token"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/paularlott/cli"
	"github.com/paularlott/cli/env"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load .env file if it exists
	env.Load()

	log.Configure("info", "console")

	rootCmd := &cli.Command{
		Name:        "gestion-impacts",
		Version:     version,
		Usage:       "Impact tracking for IP addresses, devices and virtual machines",
		Description: "Record the impact of losing an IP address, device or virtual machine. Web UI, REST API, MCP server and CLI.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:         "log-level",
				Usage:        "Log level (trace, debug, info, warn, error)",
				DefaultValue: "info",
				EnvVars:      []string{"IMPACTS_LOG_LEVEL"},
				Global:       true,
			},
			&cli.StringFlag{
				Name:         "log-format",
				Usage:        "Log format (console, json)",
				DefaultValue: "console",
				EnvVars:      []string{"IMPACTS_LOG_FORMAT"},
				Global:       true,
			},
		},
		PreRun: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			log.Configure(cmd.GetString("log-level"), cmd.GetString("log-format"))
			log.Debug("Starting", "version", version, "commit", commit, "date", date)
			return ctx, nil
		},
		Commands: []*cli.Command{
			server.Command(),
			{
				Name:        "impact",
				Usage:       "Impact commands",
				Description: "Manage impacts through a running server",
				Flags:       impact.Flags(),
				Commands:    impact.Commands(),
			},
			inventory.Command(),
			token.Command(),
		},
	}

	if err := rootCmd.Execute(context.Background()); err != nil {
		log.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}
