// Package handler exposes the auth endpoints: register and login.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"watrack/backend/internal/server/respond"
	"watrack/backend/internal/user/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler serves user registration and login.
type Handler struct {
	auth *service.AuthService
}

// NewHandler creates the auth handler.
func NewHandler(auth *service.AuthService) *Handler {
	return &Handler{auth: auth}
}

// Register mounts the routes on the router.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/users/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/users/login", h.login).Methods(http.MethodPost)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailAlreadyRegistered):
			respond.Error(w, http.StatusConflict, "email is already registered")
		case errors.Is(err, service.ErrInvalidEmail), errors.Is(err, service.ErrWeakPassword):
			respond.Error(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("user: register: %v", err)
			respond.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	respond.JSON(w, http.StatusCreated, res)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respond.Error(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		log.Printf("user: login: %v", err)
		respond.Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	respond.JSON(w, http.StatusOK, res)
}
