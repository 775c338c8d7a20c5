package policy

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jrsteele09/go-logistics-auth/identity"
	"github.com/jrsteele09/go-logistics-auth/internal/obs"
	"github.com/rs/zerolog"
)

// ErrUnknownPolicy denies a route that names a policy missing from the table.
var ErrUnknownPolicy = errors.New("unknown policy")

// RequestContext exposes the request parameters a requirement may read.
type RequestContext interface {
	Param(name string) (string, bool)
}

// Params is a fixed RequestContext.
type Params map[string]string

func (p Params) Param(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// HTTPRequest reads a gorilla/mux route variable first, then the query parameter of
// the same name.
type HTTPRequest struct {
	*http.Request
}

func (r HTTPRequest) Param(name string) (string, bool) {
	if v, ok := mux.Vars(r.Request)[name]; ok {
		return v, true
	}
	q := r.URL.Query()
	if q.Has(name) {
		return q.Get(name), true
	}
	return "", false
}

// Decision is the outcome of an evaluation. Reason is for audit logs only.
type Decision struct {
	Allowed bool
	Err     error
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(err error, reason string) Decision {
	return Decision{Err: err, Reason: reason}
}

// Evaluator applies a policy table.
type Evaluator struct {
	table  *Table
	logger zerolog.Logger
}

func NewEvaluator(table *Table, logger zerolog.Logger) *Evaluator {
	return &Evaluator{table: table, logger: logger}
}

func (e *Evaluator) Table() *Table {
	return e.table
}

// Evaluate decides whether id may proceed under the named policy. A nil identity is
// unauthenticated regardless of the policy.
func (e *Evaluator) Evaluate(ctx context.Context, name string, req RequestContext, id *identity.Record) Decision {
	d := e.evaluate(name, req, id)

	result := "allow"
	switch {
	case errors.Is(d.Err, identity.ErrUnauthenticated):
		result = "unauthenticated"
	case errors.Is(d.Err, ErrUnknownPolicy):
		result = "unknown_policy"
		e.logger.Error().Str("policy", name).Msg("route names a policy that is not configured")
	case d.Err != nil:
		result = "forbidden"
	}
	obs.ObservePolicyDecision(name, result)

	if !d.Allowed {
		ev := e.logger.Info().Ctx(ctx).Str("policy", name).Str("result", result).Str("reason", d.Reason)
		if id != nil {
			ev = ev.Str("user_id", id.UserID).Str("role", string(id.RoleName))
		}
		ev.Msg("access denied")
	}
	return d
}

func (e *Evaluator) evaluate(name string, req RequestContext, id *identity.Record) Decision {
	if id == nil {
		return deny(identity.ErrUnauthenticated, "no identity")
	}
	p, ok := e.table.Lookup(name)
	if !ok {
		return deny(ErrUnknownPolicy, "policy "+name+" not configured")
	}
	for _, r := range p.Requirements {
		if !satisfied(r, req, id) {
			return deny(identity.ErrForbidden, r.String())
		}
	}
	return allow()
}

func satisfied(r Requirement, req RequestContext, id *identity.Record) bool {
	switch r := r.(type) {
	case RoleMembership:
		return id.HasRole(r.AllowedRoles...)
	case ActiveUser:
		return id.IsActive
	case CompanyScope:
		if req == nil {
			return true
		}
		requested, ok := req.Param(r.RouteParam)
		if !ok || requested == "" {
			return true
		}
		if id.RoleName == identity.RoleAdmin {
			return true
		}
		return id.CompanyID != nil && *id.CompanyID == requested
	default:
		return false
	}
}
