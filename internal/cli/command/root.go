package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/stephzylstra/kinetic-sim/internal/cli/config"
	"github.com/stephzylstra/kinetic-sim/internal/cli/connection"
	"github.com/stephzylstra/kinetic-sim/internal/cli/output"
	"github.com/stephzylstra/kinetic-sim/internal/client"
	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
	"github.com/stephzylstra/kinetic-sim/internal/infra/buildinfo"
	"github.com/stephzylstra/kinetic-sim/internal/infra/tlsroots"
)

const settingsKey = "settings"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "kinetic-cli",
		Usage:   "Talk to a Kinetic device simulator",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			NoopCommand(),
			PutCommand(),
			GetCommand(),
			DeleteCommand(),
			BatchCommand(),
			SecurityCommand(),
			StatusCommand(),
			ConnectionsCommand(),
			ACLCommand(),
			StorageCommand(),
			ConfigCommand(),
		},
		Before: loadSettings,
	}
}

// globalFlags returns the global CLI flags. Flags that are set override
// the selected profile.
func globalFlags() []cli.Flag {
	def := config.DefaultProfile()
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Kinetic device address (host:port)",
			EnvVars: []string{"KINETIC_SERVER"},
			Value:   def.Server,
		},
		&cli.StringFlag{
			Name:    "ops-server",
			Usage:   "Ops HTTP endpoint address",
			EnvVars: []string{"KINETIC_OPS_SERVER"},
			Value:   def.OpsServer,
		},
		&cli.Int64Flag{
			Name:    "identity",
			Aliases: []string{"u"},
			Usage:   "ACL identity to authenticate as",
			EnvVars: []string{"KINETIC_IDENTITY"},
			Value:   def.Identity,
		},
		&cli.StringFlag{
			Name:    "key",
			Aliases: []string{"k"},
			Usage:   "HMAC key of the identity",
			EnvVars: []string{"KINETIC_KEY"},
			Value:   def.Key,
		},
		&cli.StringFlag{
			Name:    "algorithm",
			Usage:   "HMAC algorithm: HmacSHA1, HmacSHA256",
			EnvVars: []string{"KINETIC_ALGORITHM"},
			Value:   def.Algorithm,
		},
		&cli.BoolFlag{
			Name:  "tls",
			Usage: "Connect with TLS",
		},
		&cli.StringFlag{
			Name:  "ca-file",
			Usage: "CA bundle for verifying the device certificate",
		},
		&cli.BoolFlag{
			Name:  "insecure",
			Usage: "Skip certificate verification",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-command timeout",
			Value: 30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "CLI config file",
			EnvVars: []string{"KINETIC_CLI_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Profile to use (default: current_profile)",
			EnvVars: []string{"KINETIC_PROFILE"},
		},
	}
}

// Settings are the resolved global options of one invocation.
type Settings struct {
	ConfigPath string
	File       *config.CLIConfig
	Profile    config.Profile
	Output     output.Format
	Timeout    time.Duration
}

func loadSettings(c *cli.Context) error {
	path := c.String("config")
	file, err := config.Load(path)
	if err != nil {
		return err
	}

	name := c.String("profile")
	p, ok := file.Profile(name)
	if !ok {
		if name != "" {
			return fmt.Errorf("unknown profile %q", name)
		}
		p = config.DefaultProfile()
	}

	if c.IsSet("server") {
		p.Server = c.String("server")
	}
	if c.IsSet("ops-server") {
		p.OpsServer = c.String("ops-server")
	}
	if c.IsSet("identity") {
		p.Identity = c.Int64("identity")
	}
	if c.IsSet("key") {
		p.Key = c.String("key")
	}
	if c.IsSet("algorithm") {
		p.Algorithm = c.String("algorithm")
	}
	if c.IsSet("tls") {
		p.TLS = c.Bool("tls")
	}
	if c.IsSet("ca-file") {
		p.CAFile = c.String("ca-file")
	}
	if c.IsSet("insecure") {
		p.Insecure = c.Bool("insecure")
	}

	format := file.Output
	if c.IsSet("output") || format == "" {
		format = c.String("output")
	}
	f, err := output.ParseFormat(format)
	if err != nil {
		return err
	}

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[settingsKey] = &Settings{
		ConfigPath: path,
		File:       file,
		Profile:    p,
		Output:     f,
		Timeout:    c.Duration("timeout"),
	}
	return nil
}

// GetSettings returns the settings resolved by the app's Before hook.
func GetSettings(c *cli.Context) *Settings {
	if s, ok := c.App.Metadata[settingsKey].(*Settings); ok {
		return s
	}
	return &Settings{
		Profile: config.DefaultProfile(),
		Output:  output.FormatTable,
		Timeout: 30 * time.Second,
	}
}

func (s *Settings) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, s.Timeout)
}

// clientOptions converts the profile to Kinetic client options.
func (s *Settings) clientOptions() (client.Options, error) {
	p := s.Profile
	opts := client.Options{
		Identity: p.Identity,
		Key:      []byte(p.Key),
		Timeout:  s.Timeout,
	}
	if p.Algorithm != "" {
		alg, err := domain.ParseHMACAlgorithm(p.Algorithm)
		if err != nil {
			return opts, err
		}
		opts.Algorithm = alg
	}
	if p.TLS {
		tlsCfg, err := tlsroots.ClientConfig(p.CAFile, p.Insecure)
		if err != nil {
			return opts, err
		}
		opts.TLSConfig = tlsCfg
	}
	return opts, nil
}

// Dial connects to the device named by the resolved profile.
func Dial(c *cli.Context) (*client.Client, error) {
	s := GetSettings(c)
	opts, err := s.clientOptions()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.context(c.Context)
	defer cancel()
	return client.Dial(ctx, s.Profile.Server, opts)
}

// OpsClient returns a client for the profile's ops endpoint.
func OpsClient(c *cli.Context) (*connection.HTTPClient, error) {
	s := GetSettings(c)
	if s.Profile.OpsServer == "" {
		return nil, fmt.Errorf("no ops server configured (use --ops-server)")
	}
	opts, err := s.clientOptions()
	if err != nil {
		return nil, err
	}
	return connection.NewHTTPClient(s.Profile.OpsServer, opts.TLSConfig, s.Timeout), nil
}

// Print formats data in the selected output format.
func Print(c *cli.Context, data any) error {
	return output.NewFormatter(GetSettings(c).Output).Format(c.App.Writer, data)
}
