package guard

import (
	"context"
	"strings"

	"pumpconsole/pkg/domain"
	"pumpconsole/services/console/internal/authstate"
)

type Kind int

const (
	// Wait means auth state is still being restored; show a spinner.
	Wait Kind = iota
	Redirect
	Render
)

func (k Kind) String() string {
	switch k {
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type State struct {
	Loading bool
	User    *domain.User
}

// Route is a protected location. An empty RequiredRole admits any signed-in
// user.
type Route struct {
	Path         string          `json:"path"`
	RequiredRole domain.UserRole `json:"required_role,omitempty"`
}

type Decision struct {
	Kind   Kind   `json:"kind"`
	Target string `json:"target,omitempty"`
	// From is the originally requested path, kept for the post-login return.
	From string `json:"from,omitempty"`
}

// Evaluate decides what to do with a navigation to r. Role mismatches go to
// the user's own dashboard rather than an error page.
func Evaluate(s State, r Route) Decision {
	if s.Loading {
		return Decision{Kind: Wait}
	}
	if s.User == nil {
		return Decision{Kind: Redirect, Target: authstate.LoginPath, From: r.Path}
	}
	if r.RequiredRole == "" || s.User.Role == r.RequiredRole {
		return Decision{Kind: Render}
	}
	return Decision{Kind: Redirect, Target: authstate.GetRedirectPath(s.User)}
}

var routeRoles = map[string]domain.UserRole{
	"/dashboard":                   domain.RoleAdmin,
	"/pumps":                       domain.RoleAdmin,
	"/parts":                       domain.RoleAdmin,
	"/sold-pumps":                  domain.RoleAdmin,
	"/admins":                      domain.RoleAdmin,
	"/distributors":                domain.RoleAdmin,
	"/service-reports":             domain.RoleAdmin,
	"/distributor/dashboard":       domain.RoleDistributor,
	"/distributor/service-reports": domain.RoleDistributor,
	"/profile":                     "",
	"/settings":                    "",
}

// Lookup returns the console route for path. Nested paths inherit the role
// of their closest known parent. Unknown paths report ok=false.
func Lookup(path string) (Route, bool) {
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	for p := path; p != "" && p != "/"; p = p[:strings.LastIndex(p, "/")] {
		if role, ok := routeRoles[p]; ok {
			return Route{Path: path, RequiredRole: role}, true
		}
	}
	return Route{Path: path}, false
}

// Source is the auth state a guard reads.
type Source interface {
	Loading() bool
	User() *domain.User
	Subscribe() (<-chan struct{}, func())
}

func Current(src Source) State {
	return State{Loading: src.Loading(), User: src.User()}
}

// Await re-evaluates r on every auth state change until the decision is no
// longer Wait or ctx ends. On ctx end the last decision is returned.
func Await(ctx context.Context, src Source, r Route) Decision {
	ch, cancel := src.Subscribe()
	defer cancel()
	for {
		d := Evaluate(Current(src), r)
		if d.Kind != Wait {
			return d
		}
		select {
		case <-ctx.Done():
			return d
		case <-ch:
		}
	}
}
