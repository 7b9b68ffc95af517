package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cardvault/apiserver/internal/services"
	"github.com/cardvault/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTTL = 24 * time.Hour

// TokenClaims is what the bearer token carries: subject is the username,
// id the profile id and roles the comma-joined role names.
type TokenClaims struct {
	Username  string
	ProfileID uuid.UUID
	Roles     []types.Role
}

// EncodeToken signs a bearer token for the given identity with HS256.
func EncodeToken(secret []byte, username string, profileID uuid.UUID, roles []types.Role) (string, error) {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   username,
		"id":    profileID.String(),
		"roles": strings.Join(names, ","),
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(tokenTTL)),
	})
	return token.SignedString(secret)
}

// DecodeToken verifies the signature and expiry and recovers the identity.
func DecodeToken(secret []byte, tokenString string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return TokenClaims{}, err
	}
	if !token.Valid {
		return TokenClaims{}, errors.New("invalid token")
	}

	username, _ := claims["sub"].(string)
	if strings.TrimSpace(username) == "" {
		return TokenClaims{}, errors.New("missing subject")
	}

	rawID, _ := claims["id"].(string)
	profileID, err := uuid.Parse(rawID)
	if err != nil {
		return TokenClaims{}, errors.New("invalid id claim")
	}

	rawRoles, _ := claims["roles"].(string)
	var roles []types.Role
	for _, name := range strings.Split(rawRoles, ",") {
		role, err := types.ParseRole(strings.TrimSpace(name))
		if err != nil {
			return TokenClaims{}, err
		}
		roles = append(roles, role)
	}

	return TokenClaims{Username: username, ProfileID: profileID, Roles: roles}, nil
}

// Authenticate attaches a principal built from the bearer token. A missing
// or invalid token leaves the request anonymous rather than rejecting it;
// role guards on the routes decide what anonymity may reach.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := DecodeToken(secret, tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			principal := types.Principal{
				ProfileID: claims.ProfileID,
				Username:  claims.Username,
				Roles:     claims.Roles,
			}
			ctx := context.WithValue(r.Context(), contextPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects anonymous requests with 401 and authenticated
// requests lacking all of the given roles with 403.
func RequireRole(roles ...types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal.Anonymous() {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
				return
			}
			for _, role := range roles {
				if principal.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "access denied"})
		})
	}
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

// AuthHandler provides registration and login endpoints.
type AuthHandler struct {
	auth   *services.AuthService
	secret []byte
}

func NewAuthHandler(auth *services.AuthService, secret []byte) *AuthHandler {
	return &AuthHandler{auth: auth, secret: secret}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, auth *services.AuthService, secret []byte) {
	handler := NewAuthHandler(auth, secret)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Username    string       `json:"username"`
	Roles       []types.Role `json:"roles"`
	AccessToken string       `json:"accessToken"`
}

// Register creates a new profile with ROLE_USER.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Username = strings.TrimSpace(req.Username)
	if req.Name == "" || req.Username == "" || req.Password == "" {
		writeError(w, services.Validation("name, username and password are required"))
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Name, req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{Message: "Registered Successfully"})
}

// Login verifies credentials and returns the profile with a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, services.Validation("invalid request body"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, services.Validation("username and password are required"))
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := EncodeToken(h.secret, result.Profile.Username, result.Profile.ID, result.Roles)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		ID:          result.Profile.ID,
		Name:        result.Profile.Name,
		Username:    result.Profile.Username,
		Roles:       result.Roles,
		AccessToken: token,
	})
}
