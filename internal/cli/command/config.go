package command

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/stephzylstra/kinetic-sim/internal/cli/config"
	"github.com/stephzylstra/kinetic-sim/internal/cli/output"
)

// ConfigCommand returns the config command group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage CLI profiles",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List profiles",
				Action: runConfigList,
			},
			{
				Name:   "show",
				Usage:  "Show the resolved profile",
				Action: runConfigShow,
			},
			{
				Name:      "save",
				Usage:     "Save the resolved settings as a profile",
				ArgsUsage: "<name>",
				Action:    runConfigSave,
			},
			{
				Name:      "use",
				Usage:     "Set the current profile",
				ArgsUsage: "<name>",
				Action:    runConfigUse,
			},
		},
	}
}

type profileList struct {
	Current  string                    `json:"current_profile"`
	Profiles map[string]config.Profile `json:"profiles"`
}

func (l profileList) Table() *output.Table {
	names := make([]string, 0, len(l.Profiles))
	for name := range l.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	t := output.NewTable("CURRENT", "NAME", "SERVER", "IDENTITY", "TLS")
	for _, name := range names {
		p := l.Profiles[name]
		mark := ""
		if name == l.Current {
			mark = "*"
		}
		t.AddRow(mark, name, p.Server, strconv.FormatInt(p.Identity, 10), strconv.FormatBool(p.TLS))
	}
	return t
}

func runConfigList(c *cli.Context) error {
	s := GetSettings(c)
	return Print(c, profileList{Current: s.File.CurrentProfile, Profiles: maskProfiles(s.File.Profiles)})
}

func runConfigShow(c *cli.Context) error {
	p := GetSettings(c).Profile
	p.Key = maskKey(p.Key)
	return Print(c, p)
}

func runConfigSave(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("missing <name> argument")
	}
	s := GetSettings(c)
	s.File.Profiles[name] = s.Profile
	if err := config.Save(s.File, s.ConfigPath); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.App.Writer, "saved profile %q to %s\n", name, s.ConfigPath)
	return err
}

func runConfigUse(c *cli.Context) error {
	name := c.Args().First()
	s := GetSettings(c)
	if _, ok := s.File.Profiles[name]; !ok {
		return fmt.Errorf("unknown profile %q", name)
	}
	s.File.CurrentProfile = name
	if err := config.Save(s.File, s.ConfigPath); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.App.Writer, "current profile is %q\n", name)
	return err
}

func maskProfiles(in map[string]config.Profile) map[string]config.Profile {
	out := make(map[string]config.Profile, len(in))
	for name, p := range in {
		p.Key = maskKey(p.Key)
		out[name] = p
	}
	return out
}

func maskKey(k string) string {
	if k == "" {
		return ""
	}
	return "****"
}
