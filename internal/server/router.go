// Package server assembles the HTTP router: public auth and QR routes, plus
// the bearer-protected API.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	notificationhandler "watrack/backend/internal/notification/handler"
	"watrack/backend/internal/security"
	"watrack/backend/internal/server/middleware"
	"watrack/backend/internal/server/respond"
	trackinghandler "watrack/backend/internal/tracking/handler"
	userhandler "watrack/backend/internal/user/handler"
	wahandler "watrack/backend/internal/wa/handler"
)

// Deps carries everything the router mounts.
type Deps struct {
	Tokens        *security.TokenProvider
	Users         *userhandler.Handler
	WA            *wahandler.Handler
	Tracking      *trackinghandler.Handler
	Notifications *notificationhandler.Handler
}

// New builds the router. All routes live under /api except the health check.
func New(deps Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	public := r.PathPrefix("/api").Subrouter()
	deps.Users.Register(public)
	deps.WA.RegisterPublic(public)

	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(middleware.Auth(deps.Tokens))
	deps.WA.Register(protected)
	deps.Tracking.Register(protected)
	deps.Notifications.Register(protected)

	return otelhttp.NewHandler(r, "watrack.http")
}
