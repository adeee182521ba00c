// Package inventory implements the inventory sub-commands, which work on
// the data directory directly rather than through a server.
package inventory

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/gestion-impacts/internal/config"
	"github.com/martinsuchenak/gestion-impacts/internal/log"
	"github.com/martinsuchenak/gestion-impacts/internal/storage"
)

// Command returns the inventory command
func Command() *cli.Command {
	return &cli.Command{
		Name:        "inventory",
		Usage:       "Manage the local inventory",
		Description: "Load VRFs, devices, virtual machines and IP addresses, and reconcile impact VRFs",
		Commands: []*cli.Command{
			seedCommand(),
			reconcileCommand(),
		},
	}
}

func openStore(cmd *cli.Command) (*storage.SQLiteStorage, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	log.Debug("Storage opened", "path", cfg.DataDir)
	return store, nil
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:        "seed",
		Usage:       "Load inventory objects from a YAML file",
		Description: "Create the VRFs, devices, virtual machines, interfaces and IP addresses of a YAML file. Existing objects are kept. Use - to read stdin.",
		Flags:       config.GetFlags(),
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			var in io.Reader = os.Stdin
			if name := cmd.GetStringArg("file"); name != "-" {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			seed, err := ParseSeed(in)
			if err != nil {
				return err
			}

			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := Load(ctx, store, seed)
			if err != nil {
				log.Error("Inventory load failed", "error", err, "created", res.String())
				return err
			}
			fmt.Printf("Created %s\n", res)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:        "reconcile",
		Usage:       "Re-copy impact VRFs from their IP addresses",
		Description: "Run the VRF reconcile job once",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ReconcileImpactVRFs(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%d impacts updated\n", n)
			return nil
		},
	}
}
