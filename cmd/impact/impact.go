// Package impact implements the impact sub-commands, a client of the REST
// API of a running server.
package impact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/paularlott/cli"

	"github.com/martinsuchenak/gestion-impacts/internal/api"
	"github.com/martinsuchenak/gestion-impacts/internal/importer"
	"github.com/martinsuchenak/gestion-impacts/internal/model"
)

// DefaultServerURL is used when neither --server nor IMPACTS_SERVER_URL is set.
const DefaultServerURL = "http://localhost:8080"

// Commands returns the impact sub-commands
func Commands() []*cli.Command {
	return []*cli.Command{
		listCommand(),
		ipsCommand(),
		getCommand(),
		addCommand(),
		updateCommand(),
		deleteCommand(),
		importCommand(),
		exportCommand(),
	}
}

// Flags are the connection flags shared by the impact sub-commands
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:         "server",
			Aliases:      []string{"s"},
			Usage:        "Server URL",
			DefaultValue: DefaultServerURL,
			EnvVars:      []string{"IMPACTS_SERVER_URL"},
			Global:       true,
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "API bearer token",
			EnvVars: []string{"IMPACTS_TOKEN"},
			Global:  true,
		},
	}
}

func clientFor(cmd *cli.Command) *Client {
	return NewClient(cmd.GetString("server"), cmd.GetString("token"))
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List impacts",
		Description: "List impacts, optionally filtered",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search impact and description"},
			&cli.IntFlag{Name: "ip-address-id", Usage: "Filter by IP address ID"},
			&cli.IntFlag{Name: "device-id", Usage: "Filter by device ID"},
			&cli.IntFlag{Name: "vm-id", Usage: "Filter by virtual machine ID"},
			&cli.IntFlag{Name: "vrf-id", Usage: "Filter by VRF ID"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of results (0 for the server maximum)"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			q := url.Values{}
			setString(q, "q", cmd.GetString("query"))
			setInt(q, "ip_address_id", cmd.GetInt("ip-address-id"))
			setInt(q, "device_id", cmd.GetInt("device-id"))
			setInt(q, "vm_id", cmd.GetInt("vm-id"))
			setInt(q, "vrf_id", cmd.GetInt("vrf-id"))
			setInt(q, "limit", cmd.GetInt("limit"))

			var page api.Page[api.ImpactResponse]
			if err := clientFor(cmd).Do(ctx, "GET", "impact/?"+q.Encode(), "", nil, &page); err != nil {
				return err
			}

			t := newTable(os.Stdout, "ID", "IMPACT", "REDUNDANCY", "IP ADDRESS", "DEVICE", "VM", "VRF")
			for _, i := range page.Results {
				t.row(strconv.FormatInt(i.ID, 10), i.Impact, strconv.FormatBool(i.Redundancy),
					optID(i.IPAddress), optID(i.Device), optID(i.VM), optID(i.VRF))
			}
			if err := t.flush(); err != nil {
				return err
			}
			if len(page.Results) < page.Count {
				fmt.Fprintf(os.Stderr, "Showing %d of %d impacts\n", len(page.Results), page.Count)
			}
			return nil
		},
	}
}

func ipsCommand() *cli.Command {
	return &cli.Command{
		Name:        "ips",
		Usage:       "List IP addresses with their impact",
		Description: "Show the IP address listing: address, VRF, assigned object and impact",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Search address, VRF, assigned object and impact"},
			&cli.IntFlag{Name: "vrf-id", Usage: "Filter by VRF ID"},
			&cli.StringFlag{Name: "has-impact", Usage: "true or false"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of results (0 for the server maximum)"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			q := url.Values{}
			setString(q, "q", cmd.GetString("query"))
			setInt(q, "vrf_id", cmd.GetInt("vrf-id"))
			setString(q, "has_impact", cmd.GetString("has-impact"))
			setInt(q, "limit", cmd.GetInt("limit"))

			var page api.Page[model.IPAddressImpact]
			if err := clientFor(cmd).Do(ctx, "GET", "ip-addresses/?"+q.Encode(), "", nil, &page); err != nil {
				return err
			}

			t := newTable(os.Stdout, "IP ADDRESS", "VRF", "ASSIGNED TO", "IMPACT", "REDUNDANCY")
			for _, row := range page.Results {
				redundancy := ""
				if row.Redundancy != nil {
					redundancy = strconv.FormatBool(*row.Redundancy)
				}
				t.row(row.Address, optString(row.VRFName), row.AssignedTo, optString(row.Impact), redundancy)
			}
			return t.flush()
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:        "get",
		Usage:       "Get an impact",
		Description: "Show an impact by ID",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			id, err := parseID(cmd.GetStringArg("id"))
			if err != nil {
				return err
			}
			var i api.ImpactResponse
			if err := clientFor(cmd).Do(ctx, "GET", impactPath(id), "", nil, &i); err != nil {
				return err
			}

			t := newTable(os.Stdout)
			t.row("ID", strconv.FormatInt(i.ID, 10))
			t.row("Impact", i.Impact)
			t.row("Description", i.Description)
			t.row("Redundancy", strconv.FormatBool(i.Redundancy))
			t.row("IP address", optID(i.IPAddress))
			t.row("VRF", optID(i.VRF))
			t.row("Device", optID(i.Device))
			t.row("VM", optID(i.VM))
			t.row("Created", i.Created.Format("2006-01-02 15:04:05"))
			t.row("Last updated", i.LastUpdated.Format("2006-01-02 15:04:05"))
			return t.flush()
		},
	}
}

func writeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "impact", Usage: "Impact text"},
		&cli.StringFlag{Name: "description", Usage: "Description"},
		&cli.StringFlag{Name: "redundancy", Usage: "true or false"},
		&cli.IntFlag{Name: "ip-address-id", Usage: "IP address ID"},
		&cli.IntFlag{Name: "device-id", Usage: "Device ID"},
		&cli.IntFlag{Name: "vm-id", Usage: "Virtual machine ID"},
	}
}

// writeBody collects the flags that were given.
func writeBody(cmd *cli.Command) (map[string]any, error) {
	body := map[string]any{}
	if v := cmd.GetString("impact"); v != "" {
		body["impact"] = v
	}
	if v := cmd.GetString("description"); v != "" {
		body["description"] = v
	}
	if v := cmd.GetString("redundancy"); v != "" {
		b, err := importer.ParseBool(v)
		if err != nil {
			return nil, err
		}
		body["redundancy"] = b
	}
	for flag, field := range map[string]string{
		"ip-address-id": model.FieldIPAddress,
		"device-id":     model.FieldDevice,
		"vm-id":         model.FieldVM,
	} {
		if v := cmd.GetInt(flag); v > 0 {
			body[field] = v
		}
	}
	return body, nil
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:        "add",
		Usage:       "Add an impact",
		Description: "Create an impact attached to exactly one IP address, device or virtual machine",
		Flags:       writeFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			body, err := writeBody(cmd)
			if err != nil {
				return err
			}
			var created api.ImpactResponse
			if err := clientFor(cmd).Do(ctx, "POST", "impact/", "application/json", jsonReader(body), &created); err != nil {
				return err
			}
			fmt.Printf("Impact created: %s (ID: %d)\n", created.Impact, created.ID)
			return nil
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:        "update",
		Usage:       "Update an impact",
		Description: "Change the given fields of an impact",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Flags: writeFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			id, err := parseID(cmd.GetStringArg("id"))
			if err != nil {
				return err
			}
			body, err := writeBody(cmd)
			if err != nil {
				return err
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to update")
			}
			var updated api.ImpactResponse
			if err := clientFor(cmd).Do(ctx, "PATCH", impactPath(id), "application/json", jsonReader(body), &updated); err != nil {
				return err
			}
			fmt.Printf("Impact updated: %s (ID: %d)\n", updated.Impact, updated.ID)
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:        "delete",
		Usage:       "Delete an impact",
		Description: "Delete an impact by ID",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", Required: true},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			id, err := parseID(cmd.GetStringArg("id"))
			if err != nil {
				return err
			}
			if err := clientFor(cmd).Do(ctx, "DELETE", impactPath(id), "", nil, nil); err != nil {
				return err
			}
			fmt.Println("Impact deleted")
			return nil
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:        "import",
		Usage:       "Import impacts from a file",
		Description: "Import CSV (comma, semicolon or tab separated), JSON or YAML records. Use - to read stdin.",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "file", Required: true},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "csv, json or yaml (detected when omitted)"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			data, err := readInput(cmd.GetStringArg("file"))
			if err != nil {
				return err
			}
			path := "impact/import/"
			if f := cmd.GetString("format"); f != "" {
				if _, err := importer.ParseFormat(f); err != nil {
					return err
				}
				path += "?format=" + url.QueryEscape(f)
			}

			var imported []api.ImpactResponse
			if err := clientFor(cmd).Do(ctx, "POST", path, "text/plain", bytes.NewReader(data), &imported); err != nil {
				return err
			}
			fmt.Printf("%d impacts imported\n", len(imported))
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:        "export",
		Usage:       "Export impacts",
		Description: "Write impacts as records that import back",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "csv, json or yaml", DefaultValue: string(importer.FormatCSV)},
			&cli.BoolFlag{Name: "with-id", Usage: "Include ids so that a re-import updates in place"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file (default stdout)"},
		},
		Run: func(ctx context.Context, cmd *cli.Command) error {
			format, err := importer.ParseFormat(cmd.GetString("format"))
			if err != nil {
				return err
			}
			q := url.Values{"format": {string(format)}}
			if cmd.GetBool("with-id") {
				q.Set("with_id", "true")
			}

			data, err := clientFor(cmd).Raw(ctx, "GET", "impact/export/?"+q.Encode(), "", nil)
			if err != nil {
				return err
			}
			if out := cmd.GetString("output"); out != "" {
				return os.WriteFile(out, data, 0o644)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func impactPath(id int64) string {
	return "impact/" + strconv.FormatInt(id, 10) + "/"
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID: %s", s)
	}
	return id, nil
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}

func setInt(q url.Values, key string, v int) {
	if v > 0 {
		q.Set(key, strconv.Itoa(v))
	}
}

func optID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}

func optString(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
