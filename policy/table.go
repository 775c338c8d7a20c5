package policy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Names of the built in policies.
const (
	AdminOnly      = "AdminOnly"
	DriverOnly     = "DriverOnly"
	StaffOnly      = "StaffOnly"
	ActiveUserOnly = "ActiveUserOnly"
	CustomerOnly   = "CustomerOnly"
	CompanyStaff   = "CompanyStaff"
	CompanyAdmin   = "CompanyAdmin"
)

// CompanyParam is the route variable and query parameter carrying a company id.
const CompanyParam = "companyId"

var staffRoles = []identity.Role{identity.RoleAdmin, identity.RoleDriver, identity.RoleWarehouseStaff, identity.RoleMultiRole}

// Table maps policy names to policies. It is immutable once built.
type Table struct {
	policies map[string]Policy
}

// NewTable builds a table. Names must be unique and every role must be known.
func NewTable(policies ...Policy) (*Table, error) {
	t := &Table{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := t.add(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) add(p Policy) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("policy name is required")
	}
	if _, exists := t.policies[p.Name]; exists {
		return errors.Errorf("duplicate policy %q", p.Name)
	}
	for _, req := range p.Requirements {
		switch r := req.(type) {
		case RoleMembership:
			if len(r.AllowedRoles) == 0 {
				return errors.Errorf("policy %q: role requirement without roles", p.Name)
			}
			for _, role := range r.AllowedRoles {
				if !role.Valid() {
					return errors.Errorf("policy %q: unknown role %q", p.Name, role)
				}
			}
		case CompanyScope:
			if r.RouteParam == "" {
				return errors.Errorf("policy %q: company scope without parameter", p.Name)
			}
		case ActiveUser:
		default:
			return errors.Errorf("policy %q: unsupported requirement %T", p.Name, req)
		}
	}
	reqs := make([]Requirement, len(p.Requirements))
	copy(reqs, p.Requirements)
	t.policies[p.Name] = Policy{Name: p.Name, Requirements: reqs}
	return nil
}

// With returns a new table holding t's policies plus extra.
func (t *Table) With(extra ...Policy) (*Table, error) {
	all := make([]Policy, 0, len(t.policies)+len(extra))
	for _, p := range t.policies {
		all = append(all, p)
	}
	return NewTable(append(all, extra...)...)
}

func (t *Table) Lookup(name string) (Policy, bool) {
	p, ok := t.policies[name]
	return p, ok
}

// Names lists the table's policy names in order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.policies))
	for n := range t.policies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultTable holds the policies the back office routes are declared with.
func DefaultTable() *Table {
	t, err := NewTable(
		Policy{Name: AdminOnly, Requirements: []Requirement{Roles(identity.RoleAdmin)}},
		Policy{Name: DriverOnly, Requirements: []Requirement{Roles(identity.RoleDriver, identity.RoleMultiRole)}},
		Policy{Name: StaffOnly, Requirements: []Requirement{Roles(staffRoles...)}},
		Policy{Name: ActiveUserOnly, Requirements: []Requirement{ActiveUser{}}},
		Policy{Name: CustomerOnly, Requirements: []Requirement{Roles(identity.RoleCustomer)}},
		Policy{Name: CompanyStaff, Requirements: []Requirement{
			Roles(staffRoles...), ActiveUser{}, CompanyScope{RouteParam: CompanyParam},
		}},
		Policy{Name: CompanyAdmin, Requirements: []Requirement{
			Roles(identity.RoleAdmin, identity.RoleWarehouseStaff), ActiveUser{}, CompanyScope{RouteParam: CompanyParam},
		}},
	)
	if err != nil {
		panic(err)
	}
	return t
}

type fileFormat struct {
	Policies []struct {
		Name         string `yaml:"name"`
		Requirements []struct {
			Roles        []string `yaml:"roles"`
			Active       bool     `yaml:"active"`
			CompanyScope string   `yaml:"companyScope"`
		} `yaml:"requirements"`
	} `yaml:"policies"`
}

// Parse reads policies from YAML:
//
//	policies:
//	  - name: DispatchDesk
//	    requirements:
//	      - roles: [admin, multi_role]
//	      - active: true
//	      - companyScope: companyId
//
// Each requirement entry sets exactly one key.
func Parse(data []byte) ([]Policy, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, errors.Wrap(err, "parse policies")
	}

	out := make([]Policy, 0, len(ff.Policies))
	for _, fp := range ff.Policies {
		p := Policy{Name: fp.Name}
		for i, fr := range fp.Requirements {
			var reqs []Requirement
			if len(fr.Roles) > 0 {
				roles := make([]identity.Role, len(fr.Roles))
				for j, r := range fr.Roles {
					roles[j] = identity.Role(r)
				}
				reqs = append(reqs, Roles(roles...))
			}
			if fr.Active {
				reqs = append(reqs, ActiveUser{})
			}
			if fr.CompanyScope != "" {
				reqs = append(reqs, CompanyScope{RouteParam: fr.CompanyScope})
			}
			if len(reqs) != 1 {
				return nil, fmt.Errorf("policy %q requirement %d: exactly one of roles, active, companyScope must be set", fp.Name, i)
			}
			p.Requirements = append(p.Requirements, reqs[0])
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadTable extends base with the policies in the YAML file at path.
func LoadTable(base *Table, path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read policy file")
	}
	extra, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return base.With(extra...)
}
