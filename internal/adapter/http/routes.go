package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Chat
		r.Post("/chat", h.HandleChat)

		// Sessions
		r.Get("/sessions/{id}", h.GetSession)
		r.Delete("/sessions/{id}", h.DeleteSession)

		// Responders
		r.Get("/responders", h.ListResponders)

		// Approvals
		r.Get("/approvals", h.ListApprovals)
		r.Get("/approvals/stats", h.ApprovalStats)
		r.Post("/approvals/expire", h.ExpireApprovals)
		r.Get("/approvals/{id}", h.GetApproval)
		r.Post("/approvals/{id}/approve", h.ApproveRequest)
		r.Post("/approvals/{id}/reject", h.RejectRequest)
	})
}
