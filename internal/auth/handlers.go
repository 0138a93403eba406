package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/openmusicplayer/bilimusic/internal/errors"
)

type LoginRequest struct {
	Password string `json:"password"`
}

type Handlers struct {
	authService *Service
}

func NewHandlers(authService *Service) *Handlers {
	return &Handlers{authService: authService}
}

// IssueToken handles POST /api/v1/auth/token. It answers 404 when the
// server runs without a control password.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) error {
	if h.authService == nil {
		return apperrors.AuthDisabled()
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperrors.BadRequest("invalid request body")
	}
	if req.Password == "" {
		return apperrors.ValidationError("password is required")
	}

	resp, err := h.authService.Login(r.Context(), req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return apperrors.InvalidCredentials()
		}
		return apperrors.InternalError("login failed").WithCause(err)
	}

	apperrors.WriteJSON(w, apperrors.GetRequestID(r.Context()), http.StatusOK, resp)
	return nil
}
