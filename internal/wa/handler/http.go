// Package handler exposes the WhatsApp session API: lifecycle, pairing codes,
// and presence subscriptions.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"

	"watrack/backend/internal/server/middleware"
	"watrack/backend/internal/server/respond"
	sessiondomain "watrack/backend/internal/session/domain"
	sessionrepo "watrack/backend/internal/session/repository"
	"watrack/backend/internal/wa/controller"
)

// Handler serves the session endpoints.
type Handler struct {
	ctrl      *controller.Controller
	sessions  sessionrepo.Repository
	qrURLBase string
}

// NewHandler creates the session handler. qrURLBase is prepended to pairing
// tokens to form retrievable QR links.
func NewHandler(ctrl *controller.Controller, sessions sessionrepo.Repository, qrURLBase string) *Handler {
	return &Handler{ctrl: ctrl, sessions: sessions, qrURLBase: strings.TrimRight(qrURLBase, "/")}
}

// Register mounts the authenticated session routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/wa/sessions", h.create).Methods(http.MethodPost)
	r.HandleFunc("/wa/sessions", h.current).Methods(http.MethodGet)
	r.HandleFunc("/wa/sessions/{id}", h.status).Methods(http.MethodGet)
	r.HandleFunc("/wa/sessions/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/wa/sessions/{id}/start", h.start).Methods(http.MethodPost)
	r.HandleFunc("/wa/sessions/{id}/end", h.end).Methods(http.MethodPost)
	r.HandleFunc("/wa/sessions/{id}/subscribe", h.subscribe).Methods(http.MethodPost)
	r.HandleFunc("/wa/sessions/{id}/unsubscribe", h.unsubscribe).Methods(http.MethodPost)
	r.HandleFunc("/wa/sessions/{id}/profile-picture", h.profilePicture).Methods(http.MethodGet)
}

// RegisterPublic mounts the routes that need no bearer token: the QR image is
// protected by its unguessable token instead.
func (h *Handler) RegisterPublic(r *mux.Router) {
	r.HandleFunc("/wa/qr/{token}", h.qrImage).Methods(http.MethodGet)
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type statusResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	QRURL     string `json:"qr_url,omitempty"`
}

type numbersRequest struct {
	Numbers []string `json:"numbers"`
}

// owned loads the session and checks the caller owns it. Writes the error
// response itself; a nil return means the request is already answered.
func (h *Handler) owned(w http.ResponseWriter, r *http.Request) *sessiondomain.Session {
	id, _ := middleware.IdentityFrom(r.Context())
	sessionID := mux.Vars(r)["id"]
	s, err := h.sessions.GetByID(r.Context(), sessionID)
	if err != nil {
		log.Printf("wa: load session %s: %v", sessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load session")
		return nil
	}
	if s == nil {
		respond.Error(w, http.StatusNotFound, "session not found")
		return nil
	}
	if s.UserID != "" && s.UserID != id.UserID {
		respond.Error(w, http.StatusForbidden, "session belongs to another user")
		return nil
	}
	return s
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	s, err := h.ctrl.CreateSession(r.Context(), id.UserID)
	if err != nil {
		log.Printf("wa: create session: %v", err)
		respond.Error(w, http.StatusInternalServerError, "could not create session")
		return
	}
	respond.JSON(w, http.StatusCreated, sessionResponse{SessionID: s.SessionID, Status: string(s.Status)})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	s, err := h.sessions.LatestByUser(r.Context(), id.UserID)
	if err != nil {
		log.Printf("wa: latest session for %s: %v", id.UserID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if s == nil {
		respond.Error(w, http.StatusNotFound, "no session yet")
		return
	}
	h.writeStatus(w, r, s.SessionID)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	h.writeStatus(w, r, s.SessionID)
}

func (h *Handler) writeStatus(w http.ResponseWriter, r *http.Request, sessionID string) {
	info, err := h.ctrl.SessionStatus(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, controller.ErrSessionNotFound) {
			respond.Error(w, http.StatusNotFound, "session not found")
			return
		}
		log.Printf("wa: status %s: %v", sessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not load session")
		return
	}
	resp := statusResponse{
		SessionID: info.SessionID,
		Status:    string(info.Status),
		Running:   info.Running,
		Connected: info.Connected,
	}
	if info.QRToken != "" {
		resp.QRURL = h.qrURLBase + "/api/wa/qr/" + info.QRToken
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	err := h.ctrl.StartSession(r.Context(), s.SessionID)
	switch {
	case err == nil:
		h.writeStatus(w, r, s.SessionID)
	case errors.Is(err, controller.ErrAlreadyRunning):
		// Starting a running session is a no-op; answer with its state.
		h.writeStatus(w, r, s.SessionID)
	case errors.Is(err, controller.ErrTransportUnavailable):
		respond.Error(w, http.StatusBadGateway, "could not connect session")
	default:
		log.Printf("wa: start %s: %v", s.SessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not start session")
	}
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	if err := h.ctrl.EndSession(r.Context(), s.SessionID); err != nil {
		log.Printf("wa: end %s: %v", s.SessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not end session")
		return
	}
	respond.JSON(w, http.StatusOK, sessionResponse{SessionID: s.SessionID, Status: string(sessiondomain.StatusDisconnected)})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	if err := h.ctrl.EndSession(r.Context(), s.SessionID); err != nil {
		log.Printf("wa: delete %s: %v", s.SessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not delete session")
		return
	}
	respond.JSON(w, http.StatusNoContent, nil)
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	var req numbersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Numbers) == 0 {
		respond.Error(w, http.StatusBadRequest, "numbers are required")
		return
	}
	id, _ := middleware.IdentityFrom(r.Context())
	out, err := h.ctrl.Subscribe(r.Context(), s.SessionID, id.UserID, req.Numbers)
	if err != nil {
		if errors.Is(err, controller.ErrTransportUnavailable) {
			respond.Error(w, http.StatusConflict, "session is not connected")
			return
		}
		log.Printf("wa: subscribe on %s: %v", s.SessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not subscribe")
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	var req numbersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Numbers) == 0 {
		respond.Error(w, http.StatusBadRequest, "numbers are required")
		return
	}
	out, err := h.ctrl.Unsubscribe(r.Context(), s.SessionID, req.Numbers)
	if err != nil {
		if errors.Is(err, controller.ErrTransportUnavailable) {
			respond.Error(w, http.StatusConflict, "session is not connected")
			return
		}
		log.Printf("wa: unsubscribe on %s: %v", s.SessionID, err)
		respond.Error(w, http.StatusInternalServerError, "could not unsubscribe")
		return
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) profilePicture(w http.ResponseWriter, r *http.Request) {
	s := h.owned(w, r)
	if s == nil {
		return
	}
	number := r.URL.Query().Get("number")
	if number == "" {
		respond.Error(w, http.StatusBadRequest, "number is required")
		return
	}
	url, err := h.ctrl.ProfilePicture(r.Context(), s.SessionID, number)
	if err != nil {
		if errors.Is(err, controller.ErrTransportUnavailable) {
			respond.Error(w, http.StatusConflict, "session is not connected")
			return
		}
		log.Printf("wa: profile picture on %s: %v", s.SessionID, err)
		respond.Error(w, http.StatusBadGateway, "could not fetch profile picture")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) qrImage(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	code, ok := h.ctrl.QRCode(r.Context(), token)
	if !ok {
		respond.Error(w, http.StatusNotFound, "qr code expired or unknown")
		return
	}
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		log.Printf("wa: render qr: %v", err)
		respond.Error(w, http.StatusInternalServerError, "could not render qr code")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		log.Printf("wa: write qr image: %v", err)
	}
}
