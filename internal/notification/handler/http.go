// Package handler exposes the notification endpoints.
package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"watrack/backend/internal/notification/repository"
	"watrack/backend/internal/server/middleware"
	"watrack/backend/internal/server/respond"
)

// Handler serves notification queries and read-marking.
type Handler struct {
	repo repository.Repository
}

// NewHandler creates the notification handler.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/notifications", h.list).Methods(http.MethodGet)
	r.HandleFunc("/notifications/read-all", h.markAllRead).Methods(http.MethodPost)
	r.HandleFunc("/notifications/{id}/read", h.markRead).Methods(http.MethodPost)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respond.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	notes, err := h.repo.ListByUser(r.Context(), id.UserID, limit)
	if err != nil {
		log.Printf("notification: list for %s: %v", id.UserID, err)
		respond.Error(w, http.StatusInternalServerError, "could not list notifications")
		return
	}
	respond.JSON(w, http.StatusOK, notes)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	noteID := mux.Vars(r)["id"]
	ok, err := h.repo.MarkRead(r.Context(), id.UserID, noteID)
	if err != nil {
		log.Printf("notification: mark read %s: %v", noteID, err)
		respond.Error(w, http.StatusInternalServerError, "could not mark notification")
		return
	}
	if !ok {
		respond.Error(w, http.StatusNotFound, "notification not found")
		return
	}
	respond.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.repo.MarkAllRead(r.Context(), id.UserID); err != nil {
		log.Printf("notification: mark all read for %s: %v", id.UserID, err)
		respond.Error(w, http.StatusInternalServerError, "could not mark notifications")
		return
	}
	respond.JSON(w, http.StatusNoContent, nil)
}
