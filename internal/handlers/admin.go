package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/phishrange/apiserver/internal/storage"
	"github.com/phishrange/apiserver/internal/store"
	"github.com/phishrange/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL = 12 * time.Hour
	adminSubject    = "admin"
	maxBodyBytes    = 8 << 20
)

// AdminChallengeRepository defines the administrative operations on challenge
// definitions. Published definitions are immutable from the participant
// surface; this is the out-of-band side.
type AdminChallengeRepository interface {
	List(ctx context.Context) ([]types.Challenge, error)
	Create(ctx context.Context, challenge types.Challenge) (types.Challenge, error)
	SetBodyObjectKey(ctx context.Context, number int, key string) error
}

// AdminHandler provides the operator surface: login, challenge creation, and
// challenge body uploads to the asset store.
type AdminHandler struct {
	challenges   AdminChallengeRepository
	assets       *storage.AssetStore
	passwordHash []byte
	secret       []byte
	tokenTTL     time.Duration
}

// NewAdminHandler constructs an AdminHandler with the provided dependencies.
func NewAdminHandler(challenges AdminChallengeRepository, assets *storage.AssetStore, passwordHash, jwtSecret string) *AdminHandler {
	return &AdminHandler{
		challenges:   challenges,
		assets:       assets,
		passwordHash: []byte(passwordHash),
		secret:       []byte(jwtSecret),
		tokenTTL:     defaultTokenTTL,
	}
}

// AdminRouter registers admin routes on the given router.
func AdminRouter(r chi.Router, challenges AdminChallengeRepository, assets *storage.AssetStore, passwordHash, jwtSecret string) {
	handler := NewAdminHandler(challenges, assets, passwordHash, jwtSecret)

	r.Post("/login", handler.Login)
	r.Group(func(r chi.Router) {
		r.Use(handler.requireAdmin)
		r.Get("/challenges", handler.ListChallenges)
		r.Post("/challenges", handler.CreateChallenge)
		r.Put("/challenges/{challengeNumber}/body", handler.UploadChallengeBody)
	})
}

type LoginRequest struct {
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

// Login verifies the operator password and returns a JWT.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if len(h.passwordHash) == 0 {
		writeError(w, http.StatusNotFound, "admin surface is disabled")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.issueToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// ListChallenges returns all challenge definitions, including secrets; this
// route is operator-only.
func (h *AdminHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.challenges.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list challenges")
		return
	}
	writeJSON(w, http.StatusOK, AdminChallengeListResponse{Items: toAdminChallenges(challenges)})
}

type CreateChallengeRequest struct {
	Number          int                    `json:"challenge_number"`
	Flag            string                 `json:"flag"`
	CompleteMessage string                 `json:"complete_message"`
	Template        types.DispatchTemplate `json:"template"`
}

// CreateChallenge publishes a new challenge definition.
func (h *AdminHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	var req CreateChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Number < 1 {
		writeError(w, http.StatusBadRequest, "challenge number must be positive")
		return
	}
	if strings.TrimSpace(req.Flag) == "" {
		writeError(w, http.StatusBadRequest, "flag is required")
		return
	}

	challenge, err := h.challenges.Create(r.Context(), types.Challenge{
		Number:          req.Number,
		Flag:            req.Flag,
		CompleteMessage: req.CompleteMessage,
		Template:        req.Template,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			writeError(w, http.StatusConflict, "challenge number already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create challenge")
		return
	}

	writeJSON(w, http.StatusCreated, toAdminChallenge(challenge))
}

// UploadChallengeBody stores an HTML body in the asset store and points the
// challenge's template at it.
func (h *AdminHandler) UploadChallengeBody(w http.ResponseWriter, r *http.Request) {
	if h.assets == nil {
		writeError(w, http.StatusNotImplemented, "no asset store configured")
		return
	}

	number, err := parseChallengeNumber(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	html, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(html) == 0 {
		writeError(w, http.StatusBadRequest, "empty body")
		return
	}

	key := fmt.Sprintf("challenges/%d/body.html", number)
	if err := h.assets.PutBody(r.Context(), key, html); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store body")
		return
	}
	if err := h.challenges.SetBodyObjectKey(r.Context(), number, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "challenge not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update challenge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"body_object_key": key})
}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := h.verifyToken(tokenString); err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) issueToken() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

func (h *AdminHandler) verifyToken(tokenString string) error {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return h.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	if claims.Subject != adminSubject {
		return errors.New("invalid subject")
	}
	return nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

// AdminChallenge is the operator view of a challenge, secret included.
type AdminChallenge struct {
	types.Challenge
	Flag string `json:"flag"`
}

type AdminChallengeListResponse struct {
	Items []AdminChallenge `json:"items"`
}

func toAdminChallenge(challenge types.Challenge) AdminChallenge {
	return AdminChallenge{Challenge: challenge, Flag: challenge.Flag}
}

func toAdminChallenges(challenges []types.Challenge) []AdminChallenge {
	items := make([]AdminChallenge, 0, len(challenges))
	for _, challenge := range challenges {
		items = append(items, toAdminChallenge(challenge))
	}
	return items
}
