// FILE: shogi/internal/server/http/auth.go
package http

import (
	"errors"
	"time"

	"shogi/internal/server/core"
	"shogi/internal/server/service"
	"shogi/internal/server/storage"

	"github.com/gofiber/fiber/v2"
)

// CredentialsRequest is the register and login payload
type CredentialsRequest struct {
	Username string `json:"username" validate:"required,max=40"`
	Password string `json:"password" validate:"required,max=128"`
}

// AuthResponse carries a freshly issued token
type AuthResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ProfileResponse describes the caller and the analyses it owns
type ProfileResponse struct {
	UserID    string         `json:"userId"`
	Username  string         `json:"username"`
	CreatedAt time.Time      `json:"createdAt"`
	LastLogin *time.Time     `json:"lastLoginAt,omitempty"`
	Analyses  map[string]int `json:"analyses"`
}

// accountsAvailable rejects account calls when users cannot be stored or tokens issued
func (h *HTTPHandler) accountsAvailable(c *fiber.Ctx) error {
	if h.svc.Store() == nil {
		return accountError(c, service.ErrStorageDisabled)
	}
	if !h.svc.AuthEnabled() {
		return accountError(c, service.ErrAuthDisabled)
	}
	return nil
}

// accountError maps service failures onto API errors
func accountError(c *fiber.Ctx, err error) error {
	var status int
	resp := core.ErrorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, service.ErrStorageDisabled):
		status, resp.Code, resp.Error = fiber.StatusServiceUnavailable, core.ErrStorageDisabled, "user accounts require storage"
	case errors.Is(err, service.ErrAuthDisabled):
		status, resp.Code, resp.Error = fiber.StatusServiceUnavailable, core.ErrInternalError, "authentication is disabled"
	case errors.Is(err, service.ErrInvalidUsername):
		status, resp.Code, resp.Error, resp.Details = fiber.StatusBadRequest, core.ErrInvalidRequest, "invalid username format", err.Error()
	case errors.Is(err, service.ErrWeakPassword):
		status, resp.Code, resp.Error, resp.Details = fiber.StatusBadRequest, core.ErrInvalidRequest, "weak password", err.Error()
	case errors.Is(err, storage.ErrUserExists):
		status, resp.Code, resp.Error = fiber.StatusConflict, core.ErrUserExists, "user already exists"
	case errors.Is(err, service.ErrInvalidCredentials):
		// same answer for unknown users and wrong passwords
		status, resp.Code, resp.Error = fiber.StatusUnauthorized, core.ErrUnauthorized, "invalid credentials"
	case errors.Is(err, service.ErrUnknownUser):
		status, resp.Code = fiber.StatusNotFound, core.ErrNotFound
	default:
		status, resp.Code, resp.Error = fiber.StatusInternalServerError, core.ErrInternalError, "account operation failed"
	}
	return c.Status(status).JSON(resp)
}

func parseCredentials(c *fiber.Ctx) (*CredentialsRequest, error) {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid request body",
			Code:    core.ErrInvalidRequest,
			Details: err.Error(),
		})
	}
	if err := validate.Struct(&req); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "validation failed",
			Code:    core.ErrInvalidRequest,
			Details: validationDetails(err),
		})
	}
	return &req, nil
}

func authResponse(creds service.Credentials) AuthResponse {
	return AuthResponse{
		Token:     creds.Token,
		UserID:    creds.UserID,
		Username:  creds.Username,
		ExpiresAt: creds.ExpiresAt,
	}
}

// RegisterHandler creates an account and logs it in
func (h *HTTPHandler) RegisterHandler(c *fiber.Ctx) error {
	if err := h.accountsAvailable(c); err != nil {
		return err
	}
	req, err := parseCredentials(c)
	if req == nil {
		return err
	}

	creds, err := h.svc.Register(req.Username, req.Password)
	if err != nil {
		return accountError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse(creds))
}

// LoginHandler exchanges a username and password for a token
func (h *HTTPHandler) LoginHandler(c *fiber.Ctx) error {
	if err := h.accountsAvailable(c); err != nil {
		return err
	}
	req, err := parseCredentials(c)
	if req == nil {
		return err
	}

	creds, err := h.svc.Login(req.Username, req.Password)
	if err != nil {
		return accountError(c, err)
	}
	return c.JSON(authResponse(creds))
}

// ProfileHandler returns the caller's account and analysis counts
func (h *HTTPHandler) ProfileHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
			Error: "unauthorized",
			Code:  core.ErrUnauthorized,
		})
	}

	profile, err := h.svc.Profile(userID)
	if err != nil {
		return accountError(c, err)
	}
	return c.JSON(ProfileResponse{
		UserID:    profile.UserID,
		Username:  profile.Username,
		CreatedAt: profile.CreatedAt,
		LastLogin: profile.LastLogin,
		Analyses:  profile.Analyses,
	})
}
