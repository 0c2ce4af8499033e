package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"jansunwai/models"
	"jansunwai/utils"
)

type contextKey string

// actorKey carries the authenticated Actor through the request context.
const actorKey contextKey = "actor"

// AuthMiddleware validates bearer tokens and places the Actor in the context.
type AuthMiddleware struct {
	jwtSecret []byte
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: []byte(jwtSecret)}
}

// RequireAuth validates the bearer token and sets the actor in context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "Authorization header required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "Invalid authorization format. Expected: Bearer <token>")
			return
		}

		claims, err := utils.ParseToken(parts[1], m.jwtSecret)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		actor := models.Actor{
			UserID:       claims.UserID,
			Role:         claims.Role,
			DepartmentID: claims.DepartmentID,
		}
		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps RequireAuth and additionally checks the actor's role.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}
	return func(next http.Handler) http.Handler {
		return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !allowed[actor.Role] {
				forbidden(w, "This action is not available to your role")
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// ActorFromContext extracts the authenticated actor set by RequireAuth.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, string(models.KindUnauthorized), message)
}

func forbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, string(models.KindForbidden), message)
}

func writeError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   errorType,
		"message": message,
		"code":    status,
	})
}
