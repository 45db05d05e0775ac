// Package handler exposes the read side of tracking: numbers, interval
// history, last seen, recent activity, and daily stats.
package handler

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"watrack/backend/internal/server/middleware"
	"watrack/backend/internal/server/respond"
	statsrepo "watrack/backend/internal/stats/repository"
	"watrack/backend/internal/tracking/domain"
	trackingrepo "watrack/backend/internal/tracking/repository"
)

// Handler serves tracked-number queries.
type Handler struct {
	tracking trackingrepo.Repository
	stats    statsrepo.Repository
}

// NewHandler creates the tracking handler.
func NewHandler(tracking trackingrepo.Repository, stats statsrepo.Repository) *Handler {
	return &Handler{tracking: tracking, stats: stats}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/tracked-numbers", h.list).Methods(http.MethodGet)
	r.HandleFunc("/tracked-numbers/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/tracked-numbers/{id}/history", h.history).Methods(http.MethodGet)
	r.HandleFunc("/tracked-numbers/{id}/last-seen", h.lastSeen).Methods(http.MethodGet)
	r.HandleFunc("/tracked-numbers/{id}/daily-stats", h.dailyStats).Methods(http.MethodGet)
	r.HandleFunc("/activity", h.recentActivity).Methods(http.MethodGet)
}

type numberResponse struct {
	ID          int64     `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

type intervalResponse struct {
	OnlineTime      time.Time  `json:"online_time"`
	OfflineTime     *time.Time `json:"offline_time,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`
}

type lastSeenResponse struct {
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}

type activityResponse struct {
	PhoneNumber     string    `json:"phone_number"`
	OnlineTime      time.Time `json:"online_time"`
	DurationSeconds *int64    `json:"duration_seconds,omitempty"`
}

type dailyStatResponse struct {
	Date               string `json:"date"`
	TotalOnlineSeconds int64  `json:"total_online_seconds"`
	LoginCount         int64  `json:"login_count"`
}

// owned resolves {id} and checks the caller owns the tracked number. Writes
// the error response itself; a nil return means the request is answered.
func (h *Handler) owned(w http.ResponseWriter, r *http.Request) *domain.TrackedNumber {
	id, _ := middleware.IdentityFrom(r.Context())
	trackingID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid tracking id")
		return nil
	}
	n, err := h.tracking.GetByID(r.Context(), trackingID)
	if err != nil {
		log.Printf("tracking: load %d: %v", trackingID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load tracked number")
		return nil
	}
	if n == nil {
		respond.Error(w, http.StatusNotFound, "tracked number not found")
		return nil
	}
	if n.UserID != id.UserID {
		respond.Error(w, http.StatusForbidden, "tracked number belongs to another user")
		return nil
	}
	return n
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	numbers, err := h.tracking.ListByUser(r.Context(), id.UserID)
	if err != nil {
		log.Printf("tracking: list for %s: %v", id.UserID, err)
		respond.Error(w, http.StatusInternalServerError, "could not list numbers")
		return
	}
	out := make([]numberResponse, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, numberResponse{ID: n.ID, PhoneNumber: n.PhoneNumber, CreatedAt: n.CreatedAt})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	n := h.owned(w, r)
	if n == nil {
		return
	}
	if err := h.tracking.Delete(r.Context(), n.ID); err != nil {
		log.Printf("tracking: delete %d: %v", n.ID, err)
		respond.Error(w, http.StatusInternalServerError, "could not delete tracked number")
		return
	}
	respond.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	n := h.owned(w, r)
	if n == nil {
		return
	}
	intervals, err := h.tracking.History(r.Context(), n.ID)
	if err != nil {
		log.Printf("tracking: history %d: %v", n.ID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load history")
		return
	}
	out := make([]intervalResponse, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, intervalResponse{
			OnlineTime:      iv.OnlineTime,
			OfflineTime:     iv.OfflineTime,
			DurationSeconds: iv.DurationSeconds,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) lastSeen(w http.ResponseWriter, r *http.Request) {
	n := h.owned(w, r)
	if n == nil {
		return
	}
	ls, err := h.tracking.LastSeen(r.Context(), n.ID)
	if err != nil {
		log.Printf("tracking: last seen %d: %v", n.ID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load last seen")
		return
	}
	if ls == nil {
		respond.Error(w, http.StatusNotFound, "no activity recorded yet")
		return
	}
	respond.JSON(w, http.StatusOK, lastSeenResponse{Online: ls.Online, Timestamp: ls.Timestamp})
}

func (h *Handler) dailyStats(w http.ResponseWriter, r *http.Request) {
	n := h.owned(w, r)
	if n == nil {
		return
	}
	stats, err := h.stats.ListByTracking(r.Context(), n.ID)
	if err != nil {
		log.Printf("tracking: daily stats %d: %v", n.ID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load daily stats")
		return
	}
	out := make([]dailyStatResponse, 0, len(stats))
	for _, s := range stats {
		out = append(out, dailyStatResponse{
			Date:               s.Date.Format("2006-01-02"),
			TotalOnlineSeconds: s.TotalOnlineSeconds,
			LoginCount:         s.LoginCount,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) recentActivity(w http.ResponseWriter, r *http.Request) {
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
	activity, err := h.tracking.RecentActivity(r.Context(), id.UserID, limit)
	if err != nil {
		log.Printf("tracking: activity for %s: %v", id.UserID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load activity")
		return
	}
	out := make([]activityResponse, 0, len(activity))
	for _, a := range activity {
		out = append(out, activityResponse{
			PhoneNumber:     a.PhoneNumber,
			OnlineTime:      a.OnlineTime,
			DurationSeconds: a.DurationSeconds,
		})
	}
	respond.JSON(w, http.StatusOK, out)
}
