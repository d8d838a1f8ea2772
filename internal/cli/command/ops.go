package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stephzylstra/kinetic-sim/internal/cli/output"
	"github.com/stephzylstra/kinetic-sim/internal/server/httpserver/handler"
	ks "github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
)

// StatusCommand returns the status command.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show simulator build, uptime and connection count",
		Action: runStatus,
	}
}

// ConnectionsCommand returns the connections command.
func ConnectionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "connections",
		Aliases:   []string{"conns"},
		Usage:     "List open device connections, or show one by id",
		ArgsUsage: "[id]",
		Action:    runConnections,
	}
}

// ACLCommand returns the acl command.
func ACLCommand() *cli.Command {
	return &cli.Command{
		Name:   "acl",
		Usage:  "Show the active ACL table (keys are never shown)",
		Action: runACL,
	}
}

// StorageCommand returns the storage command.
func StorageCommand() *cli.Command {
	return &cli.Command{
		Name:   "storage",
		Usage:  "Show storage engine statistics",
		Action: runStorage,
	}
}

type statusView struct{ handler.StatusResponse }

func (v statusView) Table() *output.Table {
	t := output.NewTable("VERSION", "COMMIT", "UPTIME", "CONNECTIONS", "SECURITY")
	t.AddRow(v.Build.Version, v.Build.Commit, v.Uptime, strconv.Itoa(v.Connections), strconv.FormatBool(v.Security))
	return t
}

type connectionsView struct{ handler.ConnectionsResponse }

func (v connectionsView) Table() *output.Table {
	t := output.NewTable("ID", "REMOTE", "TLS", "OPENED", "REQUESTS", "LAST SEQ", "BATCHES")
	for _, c := range v.Connections {
		t.AddRow(strconv.FormatInt(c.ID, 10), c.RemoteAddr, strconv.FormatBool(c.TLS),
			c.OpenedAt.Format(time.RFC3339), strconv.FormatInt(c.Requests, 10),
			strconv.FormatInt(c.LastSequence, 10), strconv.Itoa(c.OpenBatches))
	}
	return t
}

type aclView struct{ handler.ACLResponse }

func (v aclView) Table() *output.Table {
	t := output.NewTable("IDENTITY", "ALGORITHM", "OFFSET", "VALUE", "PERMISSIONS", "TLS")
	for _, e := range v.Entries {
		if len(e.Scopes) == 0 {
			t.AddRow(strconv.FormatInt(e.Identity, 10), e.Algorithm, "", "", "", "")
		}
		for _, sc := range e.Scopes {
			t.AddRow(strconv.FormatInt(e.Identity, 10), e.Algorithm, strconv.FormatInt(sc.Offset, 10),
				sc.Value, strings.Join(sc.Permissions, ","), strconv.FormatBool(sc.TLSRequired))
		}
	}
	return t
}

type storageView struct{ handler.StorageResponse }

func (v storageView) Table() *output.Table {
	t := output.NewTable("ENGINE", "KEYS", "SIZE", "LSM", "VLOG")
	t.AddRow(v.Engine, strconv.FormatUint(v.TotalKeys, 10), strconv.FormatUint(v.TotalSize, 10),
		strconv.FormatUint(v.LSMSize, 10), strconv.FormatUint(v.ValueLogSize, 10))
	return t
}

func fetch(c *cli.Context, path string, target any) error {
	hc, err := OpsClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := GetSettings(c).context(c.Context)
	defer cancel()
	return hc.Fetch(ctx, path, target)
}

func runStatus(c *cli.Context) error {
	var v statusView
	if err := fetch(c, "/status", &v.StatusResponse); err != nil {
		return err
	}
	return Print(c, v)
}

func runConnections(c *cli.Context) error {
	var v connectionsView
	if id := c.Args().First(); id != "" {
		if _, err := strconv.ParseInt(id, 10, 64); err != nil {
			return fmt.Errorf("invalid connection id %q", id)
		}
		var info ks.ConnInfo
		if err := fetch(c, "/connections/"+id, &info); err != nil {
			return err
		}
		v.Count = 1
		v.Connections = []ks.ConnInfo{info}
		return Print(c, v)
	}
	if err := fetch(c, "/connections", &v.ConnectionsResponse); err != nil {
		return err
	}
	return Print(c, v)
}

func runACL(c *cli.Context) error {
	var v aclView
	if err := fetch(c, "/acl", &v.ACLResponse); err != nil {
		return err
	}
	if v.Open && GetSettings(c).Output == output.FormatTable {
		return Print(c, "security open: no ACLs configured")
	}
	return Print(c, v)
}

func runStorage(c *cli.Context) error {
	var v storageView
	if err := fetch(c, "/storage", &v.StorageResponse); err != nil {
		return err
	}
	return Print(c, v)
}
