package guard

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-router"
)

// Access tells whether a route needs a session
type Access int

const (
	// Protected routes require a resolved session. It is the zero value.
	Protected Access = iota
	// Public routes skip the guard
	Public
)

func (a Access) String() string {
	if a == Public {
		return "public"
	}
	return "protected"
}

// Route is one entry of a route table
type Route struct {
	Name       string
	Method     string
	Path       string
	Access     Access
	Roles      []string
	Middleware []router.MiddlewareFunc
	Handler    router.HandlerFunc
}

// Chain returns the middleware of route in run order: guard checks
// first, then the route middleware
func (g *Guard) Chain(route Route) []router.MiddlewareFunc {
	chain := make([]router.MiddlewareFunc, 0, len(route.Middleware)+2)

	if route.Access == Protected {
		chain = append(chain, g.Authenticate())
		if len(route.Roles) > 0 {
			chain = append(chain, g.RequireRoles(route.Roles...))
		}
	}

	return append(chain, route.Middleware...)
}

// Handler wraps the route handler with its chain
func (g *Guard) Handler(route Route) router.HandlerFunc {
	return Compose(route.Handler, g.Chain(route)...)
}

// Compose wraps h so that mw[0] runs first
func Compose(h router.HandlerFunc, mw ...router.MiddlewareFunc) router.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		if mw[i] != nil {
			h = mw[i](h)
		}
	}
	return h
}

// Mount registers every route of the table on r. It panics on methods
// the router has no verb for.
func Mount[T any](r router.Router[T], g *Guard, routes []Route) {
	for _, route := range routes {
		h := g.Handler(route)

		var info router.RouteInfo
		switch route.Method {
		case http.MethodGet:
			info = r.Get(route.Path, h)
		case http.MethodPost:
			info = r.Post(route.Path, h)
		case http.MethodPut:
			info = r.Put(route.Path, h)
		case http.MethodDelete:
			info = r.Delete(route.Path, h)
		default:
			panic(fmt.Sprintf("GUARD: unsupported method %q for %s", route.Method, route.Path))
		}

		if route.Name != "" {
			info.SetName(route.Name)
		}
	}
}
