package httpapi

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// UserAPI is the part of services.UserService the handlers call.
type UserAPI interface {
	ReserveIdentity(ctx context.Context) (string, error)
	Signup(ctx context.Context, reservation string, c services.SignupCandidate) (*services.Registration, error)
	Login(ctx context.Context, identifier, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUUID(ctx context.Context, identifier string) (uuid.UUID, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.Token, error)
	Profile(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type handlers struct {
	users  UserAPI
	logger logging.Logger
}

type newUserRequest struct {
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type signupRequest struct {
	User      newUserRequest `json:"user"`
	UUIDToken string         `json:"uuid_token"`
}

type loginRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

type signupResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	UUID         uuid.UUID `json:"uuid"`
}

type profileResponse struct {
	UUID      uuid.UUID `json:"uuid"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handlers) reserveUUID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	tok, err := h.users.ReserveIdentity(ctx)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tok)
}

func (h *handlers) signup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeJSON(w, r, &in); err != nil {
		h.fail(w, r, badRequest("invalid json"))
		return
	}
	if in.UUIDToken == "" {
		h.fail(w, r, badRequest("uuid_token is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	reg, err := h.users.Signup(ctx, in.UUIDToken, services.SignupCandidate{
		Email:    in.User.Email,
		Nickname: in.User.Nickname,
		Password: in.User.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, signupResponse{
		AccessToken:  reg.AccessToken,
		RefreshToken: reg.RefreshToken,
		TokenType:    common.BearerScheme,
		UUID:         reg.UserID,
	})
}

// login accepts a JSON body or an OAuth2 password-grant form.
func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest

	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			h.fail(w, r, badRequest("invalid form"))
			return
		}
		in.Nickname = r.PostFormValue("username")
		in.Password = r.PostFormValue("password")
	default:
		if err := decodeJSON(w, r, &in); err != nil {
			h.fail(w, r, badRequest("invalid json"))
			return
		}
	}

	if in.Nickname == "" || in.Password == "" {
		h.fail(w, r, badRequest("nickname and password are required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	pair, err := h.users.Login(ctx, in.Nickname, in.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    common.BearerScheme,
	})
}

func (h *handlers) getAccessToken(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeJSON(w, r, &in); err != nil || in.RefreshToken == "" {
		h.fail(w, r, badRequest("refresh_token is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	pair, err := h.users.Refresh(ctx, in.RefreshToken)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    common.BearerScheme,
	})
}

func (h *handlers) getUUID(w http.ResponseWriter, r *http.Request) {
	nickname := r.URL.Query().Get("nickname")
	if nickname == "" {
		h.fail(w, r, badRequest("nickname is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	id, err := h.users.GetUUID(ctx, nickname)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, id)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeJSON(w, r, &in); err != nil || in.RefreshToken == "" {
		h.fail(w, r, badRequest("refresh_token is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	if err := h.users.Logout(ctx, in.RefreshToken); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	tok := tokenFromContext(r.Context())

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	u, err := h.users.Profile(ctx, tok.Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profileResponse{
		UUID:      u.UUID,
		Email:     u.Email,
		Nickname:  u.Nickname,
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt,
	})
}

// fail writes the error response. Server errors are logged here; auth
// failures were already logged with their reason by the service.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	body := errorResponse(err)
	if body.StatusCode >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	respondError(w, err)
}
