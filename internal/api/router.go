// Package api assembles the HTTP surface: routes, middleware chain and the
// small handlers that do not belong to a domain.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tixdesk/server/internal/api/handlers"
	"github.com/tixdesk/server/internal/api/middleware"
	"github.com/tixdesk/server/internal/api/problem"
	"github.com/tixdesk/server/internal/audit"
	"github.com/tixdesk/server/internal/config"
	"github.com/tixdesk/server/internal/metrics"
)

// AccountService is implemented by *users.Service.
type AccountService interface {
	handlers.AccountService
	middleware.IdentityResolver
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	Accounts AccountService
	Tokens   middleware.TokenValidator
	Health   *handlers.HealthChecker
	Build    BuildInfo
}

// NewRouter returns the fully wrapped HTTP handler.
//
// Middleware order, outermost first: tracing, correlation id, access log,
// audit client address, metrics, security headers, CORS, body limit. Metrics sits directly outside
// the handlers that keep the *http.Request unchanged, so it can read the
// route pattern ServeMux stores on the request.
func NewRouter(deps Deps) http.Handler {
	usersHandler := handlers.NewUsersHandler(deps.Accounts)
	gate := middleware.BearerAuth(deps.Tokens, deps.Accounts)
	requireToken := middleware.RequireToken(deps.Tokens)

	health := deps.Health
	if health == nil {
		health = handlers.NewHealthChecker(deps.Build.Version, deps.Build.GitCommit)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/users/signup", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(usersHandler.Signup),
	}))
	mux.Handle("/api/users/login", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(usersHandler.Login),
	}))
	mux.Handle("/api/users/logout", methodMux(map[string]http.Handler{
		http.MethodPost: requireToken(http.HandlerFunc(usersHandler.Logout)),
	}))
	mux.Handle("/api/users/update-user", methodMux(map[string]http.Handler{
		http.MethodPost: gate(http.HandlerFunc(usersHandler.UpdateUser)),
	}))
	mux.Handle("/api/users/user", methodMux(map[string]http.Handler{
		http.MethodGet: gate(http.HandlerFunc(usersHandler.ListUsers)),
	}))

	mux.Handle("/healthz", methodMux(map[string]http.Handler{http.MethodGet: health.Healthz()}))
	mux.Handle("/readyz", methodMux(map[string]http.Handler{http.MethodGet: health.Readyz()}))
	mux.Handle("/version", methodMux(map[string]http.Handler{http.MethodGet: VersionHandler(deps.Build)}))
	mux.Handle("/metrics", methodMux(map[string]http.Handler{http.MethodGet: metrics.Handler()}))
	mux.Handle("/api/openapi.json", methodMux(map[string]http.Handler{http.MethodGet: OpenAPIHandler()}))

	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		problem.Write(w, r, problem.KindNotFound, "no such endpoint", nil)
	}))

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = middleware.CORS(deps.Config.CORS, deps.Logger)(handler)
	handler = middleware.SecurityHeaders(deps.Config.IsProduction())(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = audit.Middleware(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)
	handler = middleware.Tracing(handler)
	return handler
}

// methodMux dispatches on r.Method and answers anything else with 405 and
// an Allow header.
func methodMux(handlers map[string]http.Handler) http.Handler {
	allow := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allow)
		problem.Write(w, r, problem.KindMethodNotAllowed, "method not allowed", nil)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
