package command

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stephzylstra/kinetic-sim/internal/cli/output"
	"github.com/stephzylstra/kinetic-sim/internal/client"
	ks "github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
)

func hexFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "hex",
		Usage: "Key and value arguments are hex encoded",
	}
}

func writeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "db-version",
			Usage: "Expected stored version",
		},
		&cli.BoolFlag{
			Name:  "force",
			Usage: "Skip the version check",
		},
		&cli.StringFlag{
			Name:  "sync",
			Usage: "Durability: writethrough, writeback, flush",
			Value: "writethrough",
		},
	}
}

// NoopCommand returns the noop command.
func NoopCommand() *cli.Command {
	return &cli.Command{
		Name:   "noop",
		Usage:  "Round-trip a NOOP to check connectivity and credentials",
		Action: runNoop,
	}
}

// PutCommand returns the put command.
func PutCommand() *cli.Command {
	return &cli.Command{
		Name:      "put",
		Usage:     "Store a value",
		ArgsUsage: "<key> [value]",
		Flags: append(writeFlags(),
			hexFlag(),
			&cli.StringFlag{
				Name:  "new-version",
				Usage: "Version to store with the entry",
			},
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Usage:   "Read the value from a file (- for stdin)",
			},
		),
		Action: runPut,
	}
}

// GetCommand returns the get command.
func GetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Read a value",
		ArgsUsage: "<key>",
		Flags: []cli.Flag{
			hexFlag(),
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Write only the value bytes",
			},
		},
		Action: runGet,
	}
}

// DeleteCommand returns the delete command.
func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a key",
		ArgsUsage: "<key>",
		Flags:     append(writeFlags(), hexFlag()),
		Action:    runDelete,
	}
}

// EntryView is the printable form of a stored entry.
type EntryView struct {
	Key     string `json:"key" yaml:"key"`
	Value   string `json:"value" yaml:"value"`
	Version string `json:"version" yaml:"version"`
}

// Table implements output.Tabular.
func (e EntryView) Table() *output.Table {
	t := output.NewTable("KEY", "VERSION", "VALUE")
	t.AddRow(e.Key, e.Version, e.Value)
	return t
}

func newEntryView(e *client.Entry, useHex bool) EntryView {
	return EntryView{
		Key:     encodeArg(e.Key, useHex),
		Value:   encodeArg(e.Value, useHex),
		Version: encodeArg(e.Version, useHex),
	}
}

func decodeArg(s string, useHex bool) ([]byte, error) {
	if !useHex {
		return []byte(s), nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

func encodeArg(b []byte, useHex bool) string {
	if useHex {
		return hex.EncodeToString(b)
	}
	return string(b)
}

// ParseSync maps a durability name to the wire value.
func ParseSync(s string) (ks.Synchronization, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "", "writethrough":
		return ks.SyncWriteThrough, nil
	case "writeback":
		return ks.SyncWriteBack, nil
	case "flush":
		return ks.SyncFlush, nil
	}
	return 0, fmt.Errorf("unknown sync mode %q (writethrough, writeback, flush)", s)
}

func parseWriteOptions(c *cli.Context) (*client.WriteOptions, error) {
	useHex := c.Bool("hex")
	sync, err := ParseSync(c.String("sync"))
	if err != nil {
		return nil, err
	}
	opts := &client.WriteOptions{Force: c.Bool("force"), Sync: sync}
	if c.IsSet("db-version") {
		if opts.DBVersion, err = decodeArg(c.String("db-version"), useHex); err != nil {
			return nil, err
		}
	}
	if c.IsSet("new-version") {
		if opts.NewVersion, err = decodeArg(c.String("new-version"), useHex); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func keyArg(c *cli.Context) ([]byte, error) {
	if c.NArg() < 1 {
		return nil, fmt.Errorf("missing <key> argument")
	}
	return decodeArg(c.Args().First(), c.Bool("hex"))
}

func runNoop(c *cli.Context) error {
	cl, err := Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := GetSettings(c).context(c.Context)
	defer cancel()

	start := time.Now()
	if err := cl.Noop(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "OK connection=%d latency=%s\n", cl.ConnectionID(), time.Since(start).Round(time.Microsecond))
	return err
}

func runPut(c *cli.Context) error {
	key, err := keyArg(c)
	if err != nil {
		return err
	}
	value, err := valueArg(c)
	if err != nil {
		return err
	}
	opts, err := parseWriteOptions(c)
	if err != nil {
		return err
	}

	cl, err := Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := GetSettings(c).context(c.Context)
	defer cancel()
	if err := cl.Put(ctx, key, value, opts); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "stored %s (%d bytes)\n", c.Args().First(), len(value))
	return err
}

func valueArg(c *cli.Context) ([]byte, error) {
	switch path := c.String("file"); {
	case path == "-":
		return io.ReadAll(os.Stdin)
	case path != "":
		return os.ReadFile(path)
	case c.NArg() < 2:
		return nil, fmt.Errorf("missing [value] argument (or --file)")
	}
	return decodeArg(c.Args().Get(1), c.Bool("hex"))
}

func runGet(c *cli.Context) error {
	key, err := keyArg(c)
	if err != nil {
		return err
	}

	cl, err := Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := GetSettings(c).context(c.Context)
	defer cancel()
	entry, err := cl.Get(ctx, key)
	if err != nil {
		return err
	}

	if c.Bool("raw") {
		_, err = c.App.Writer.Write(entry.Value)
		return err
	}
	return Print(c, newEntryView(entry, c.Bool("hex")))
}

func runDelete(c *cli.Context) error {
	key, err := keyArg(c)
	if err != nil {
		return err
	}
	opts, err := parseWriteOptions(c)
	if err != nil {
		return err
	}

	cl, err := Dial(c)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, cancel := GetSettings(c).context(c.Context)
	defer cancel()
	if err := cl.Delete(ctx, key, opts); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "deleted %s\n", c.Args().First())
	return err
}
