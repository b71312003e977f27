package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/prior-auth/paw-app/paw/logging"
	"github.com/prior-auth/paw-app/paw/monitoring"
)

// NewAPIRouter builds the workflow API. Cases travel in request bodies; the
// engine holds no server-side case state.
func NewAPIRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	m := monitoring.GetMonitor()
	r.Use(middleware.RequestID, logging.NewStructuredLogger(), render.SetContentType(render.ContentTypeJSON), ConnectionClose)

	r.Route("/api/v1/cases/{caseID}", func(r chi.Router) {
		r.Use(logging.CaseLogger)
		r.Post(m.WrapHandler("/next-action", h.NextAction))
		r.Post(m.WrapHandler("/recover", h.Recover))
		r.Post(m.WrapHandler("/payers/{payer}/status", h.PayerStatus))
		r.Post(m.WrapHandler("/validate", h.Validate))
		r.Post(m.WrapHandler("/classify", h.ClassifyDenial))
	})
	r.Get(m.WrapHandler("/_version", getVersion))
	r.Get(m.WrapHandler("/_health", healthCheck))
	return r
}

// ConnectionClose sets Connection: close on every response so load balancers
// do not hold idle keep-alive sockets to the engine.
func ConnectionClose(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Connection", "close")
		next.ServeHTTP(w, r)
	})
}
