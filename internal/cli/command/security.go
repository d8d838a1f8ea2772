package command

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/stephzylstra/kinetic-sim/internal/cli/output"
	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// ACLFile is the YAML document read by security apply.
//
//	acls:
//	  - identity: 2
//	    key: secret
//	    algorithm: HmacSHA256
//	    scopes:
//	      - offset: 0
//	        value: "user/"
//	        permissions: [READ, WRITE]
type ACLFile struct {
	ACLs []ACLSpec `yaml:"acls"`
}

// ACLSpec is one identity in an ACLFile.
type ACLSpec struct {
	Identity    int64                `yaml:"identity"`
	Key         string               `yaml:"key"`
	Algorithm   domain.HMACAlgorithm `yaml:"algorithm"`
	MaxPriority int32                `yaml:"max_priority,omitempty"`
	Scopes      []ScopeSpec          `yaml:"scopes"`
}

// ScopeSpec is one scope of an ACLSpec. ValueHex takes precedence over
// Value.
type ScopeSpec struct {
	Offset      int64               `yaml:"offset"`
	Value       string              `yaml:"value,omitempty"`
	ValueHex    string              `yaml:"value_hex,omitempty"`
	Permissions []domain.Permission `yaml:"permissions"`
	TLSRequired bool                `yaml:"tls_required,omitempty"`
}

// LoadACLFile reads an ACL document and converts it to validated domain
// entries.
func LoadACLFile(path string) ([]*domain.ACL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f ACLFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(f.ACLs) == 0 {
		return nil, fmt.Errorf("%s: no acls", path)
	}

	acls := make([]*domain.ACL, 0, len(f.ACLs))
	for _, spec := range f.ACLs {
		acl, err := spec.toDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: identity %d: %w", path, spec.Identity, err)
		}
		acls = append(acls, acl)
	}
	if err := domain.ValidateACLs(acls); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return acls, nil
}

func (s ACLSpec) toDomain() (*domain.ACL, error) {
	alg := s.Algorithm
	if alg == 0 {
		alg = domain.HMACSHA1
	}
	acl := &domain.ACL{
		Identity:      s.Identity,
		Key:           []byte(s.Key),
		HMACAlgorithm: alg,
		MaxPriority:   s.MaxPriority,
	}
	for _, sc := range s.Scopes {
		value := []byte(sc.Value)
		if sc.ValueHex != "" {
			v, err := hex.DecodeString(sc.ValueHex)
			if err != nil {
				return nil, fmt.Errorf("value_hex: %w", err)
			}
			value = v
		}
		acl.Scopes = append(acl.Scopes, domain.Scope{
			Offset:      sc.Offset,
			Value:       value,
			Permissions: sc.Permissions,
			TLSRequired: sc.TLSRequired,
		})
	}
	return acl, nil
}

// SecurityCommand returns the security command group.
func SecurityCommand() *cli.Command {
	fileFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "ACL YAML file",
			Required: true,
		}
	}
	return &cli.Command{
		Name:  "security",
		Usage: "Manage device ACLs",
		Subcommands: []*cli.Command{
			{
				Name:   "apply",
				Usage:  "Replace the ACLs of the listed identities",
				Flags:  []cli.Flag{fileFlag()},
				Action: runSecurityApply,
			},
			{
				Name:   "validate",
				Usage:  "Check an ACL file without sending it",
				Flags:  []cli.Flag{fileFlag()},
				Action: runSecurityValidate,
			},
		},
	}
}

func runSecurityApply(c *cli.Context) error {
	acls, err := LoadACLFile(c.String("file"))
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
	if err := cl.SetACLs(ctx, acls); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.App.Writer, "applied %d acl(s)\n", len(acls))
	return err
}

func runSecurityValidate(c *cli.Context) error {
	acls, err := LoadACLFile(c.String("file"))
	if err != nil {
		return err
	}
	return Print(c, summarizeACLs(acls))
}

// ACLRow summarizes one identity without its key.
type ACLRow struct {
	Identity    int64    `json:"identity" yaml:"identity"`
	Algorithm   string   `json:"algorithm" yaml:"algorithm"`
	Scopes      int      `json:"scopes" yaml:"scopes"`
	Permissions []string `json:"permissions" yaml:"permissions"`
}

type aclSummary []ACLRow

func summarizeACLs(acls []*domain.ACL) aclSummary {
	rows := make(aclSummary, 0, len(acls))
	for _, acl := range acls {
		row := ACLRow{
			Identity:  acl.Identity,
			Algorithm: acl.HMACAlgorithm.String(),
			Scopes:    len(acl.Scopes),
		}
		for _, sc := range acl.Scopes {
			names := make([]string, len(sc.Permissions))
			for i, p := range sc.Permissions {
				names[i] = p.String()
			}
			row.Permissions = append(row.Permissions, strings.Join(names, "+"))
		}
		rows = append(rows, row)
	}
	return rows
}

func (a aclSummary) Table() *output.Table {
	t := output.NewTable("IDENTITY", "ALGORITHM", "SCOPES", "PERMISSIONS")
	for _, r := range a {
		t.AddRow(strconv.FormatInt(r.Identity, 10), r.Algorithm,
			strconv.Itoa(r.Scopes), strings.Join(r.Permissions, ","))
	}
	return t
}
