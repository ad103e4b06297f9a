package api

import (
	"net/http"

	"github.com/safar/go-shop/internal/account"
	"github.com/safar/go-shop/internal/models"
)

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req account.Registration
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, map[string]any{
		"user":    user,
		"message": "registration successful, check your email to verify the address",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, r, http.StatusOK, session)
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (h *handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.accounts.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, user)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	user, err := h.accounts.Profile(r.Context(), caller(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, user)
}

func (h *handlers) updateMe(w http.ResponseWriter, r *http.Request) {
	var req account.ProfileUpdate
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), caller(r).UserID, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, user)
}

func (h *handlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.accounts.Addresses(r.Context(), caller(r).UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, addrs)
}

type addressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (h *handlers) addAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	addr, err := h.accounts.AddAddress(r.Context(), caller(r).UserID, models.Address{
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, addr)
}
