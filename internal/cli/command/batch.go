package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/stephzylstra/kinetic-sim/internal/client"
)

// BatchFile is the YAML document read by the batch command.
//
//	operations:
//	  - op: put
//	    key: user/1
//	    value: alice
//	    new_version: v1
//	    force: true
//	  - op: delete
//	    key: user/0
//	    db_version: v7
type BatchFile struct {
	Operations []BatchOp `yaml:"operations"`
}

// BatchOp is one write inside a batch.
type BatchOp struct {
	Op         string `yaml:"op"`
	Key        string `yaml:"key"`
	Value      string `yaml:"value,omitempty"`
	NewVersion string `yaml:"new_version,omitempty"`
	DBVersion  string `yaml:"db_version,omitempty"`
	Force      bool   `yaml:"force,omitempty"`
}

// LoadBatchFile reads and checks a batch document.
func LoadBatchFile(path string) (*BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f BatchFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.Operations) == 0 {
		return nil, fmt.Errorf("%s: no operations", path)
	}
	for i, op := range f.Operations {
		if op.Op != "put" && op.Op != "delete" {
			return nil, fmt.Errorf("%s: operation %d: unknown op %q (put, delete)", path, i, op.Op)
		}
		if op.Key == "" {
			return nil, fmt.Errorf("%s: operation %d: empty key", path, i)
		}
	}
	return &f, nil
}

func (op BatchOp) writeOptions() *client.WriteOptions {
	o := &client.WriteOptions{Force: op.Force}
	if op.NewVersion != "" {
		o.NewVersion = []byte(op.NewVersion)
	}
	if op.DBVersion != "" {
		o.DBVersion = []byte(op.DBVersion)
	}
	return o
}

// BatchCommand returns the batch command.
func BatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Apply puts and deletes from a YAML file atomically",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Batch YAML file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "abort",
				Usage: "Send the operations, then abort instead of committing",
			},
		},
		Action: runBatch,
	}
}

func runBatch(c *cli.Context) error {
	f, err := LoadBatchFile(c.String("file"))
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

	b, err := cl.StartBatch(ctx)
	if err != nil {
		return err
	}
	for i, op := range f.Operations {
		switch op.Op {
		case "put":
			err = b.Put(ctx, []byte(op.Key), []byte(op.Value), op.writeOptions())
		case "delete":
			err = b.Delete(ctx, []byte(op.Key), op.writeOptions())
		}
		if err != nil {
			_ = b.Abort(ctx)
			return fmt.Errorf("operation %d (%s %s): %w", i, op.Op, op.Key, err)
		}
	}

	if c.Bool("abort") {
		if err := b.Abort(ctx); err != nil {
			return err
		}
		_, err = fmt.Fprintf(c.App.Writer, "aborted batch %d (%d operations)\n", b.ID(), len(f.Operations))
		return err
	}
	if err := b.Commit(ctx); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "committed batch %d (%d operations)\n", b.ID(), len(f.Operations))
	return err
}
