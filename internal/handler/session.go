package handler

import (
	"context"
	"net/http"

	"github.com/xenking/campus-eats/internal/domain/identity"
	"github.com/xenking/campus-eats/internal/session"
)

type sessionResponse struct {
	DeviceID  string             `json:"deviceId"`
	User      *identity.Identity `json:"user"`
	CartCount int                `json:"cartCount"`
}

func sessionView(s *session.Session) sessionResponse {
	return sessionResponse{
		DeviceID:  s.DeviceID(),
		User:      s.User(),
		CartCount: s.Cart().Count(),
	}
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// GetSession returns the signed-in user of the device, if any.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(_ context.Context, s *session.Session) (int, any, error) {
		return http.StatusOK, sessionView(s), nil
	})
}

// Login signs the device in and switches to the user's cart.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		if _, err := s.Login(ctx, identity.Credentials{Email: req.Email, Password: req.Password}); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, sessionView(s), nil
	})
}

// Signup registers a user and signs the device in.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		_, err := s.Signup(ctx, identity.Registration{
			Email:       req.Email,
			Password:    req.Password,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, sessionView(s), nil
	})
}

// Logout signs the device out and switches back to its anonymous cart.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.inSession(w, r, func(ctx context.Context, s *session.Session) (int, any, error) {
		if err := s.Logout(ctx); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, sessionView(s), nil
	})
}
