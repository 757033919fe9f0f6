package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	userIDKey contextKey = "userId"
	shopKey   contextKey = "shop"
)

// UserID returns the authenticated user id from context
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// activeShop returns the tenant selected by X-Barbershop-Id, if any
func activeShop(ctx context.Context) (Shop, bool) {
	s, ok := ctx.Value(shopKey).(Shop)
	return s, ok
}

// IssueAccessToken signs an HS256 access token for sub valid for ttl.
// A negative ttl yields an already expired token.
func (s *Server) IssueAccessToken(sub string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    Issuer,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

func (s *Server) validateAccessToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

// AuthMiddleware requires a valid bearer access token
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
			return
		}

		sub, err := s.validateAccessToken(raw)
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("rejected access token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, sub)
		logger := log.Ctx(ctx).With().Str("userId", sub).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

// TenantMiddleware reads X-Barbershop-Id and rejects suspended tenants
func (s *Server) TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Barbershop-Id")
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := strconv.Atoi(raw)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Invalid barbershop id %q.", raw))
			return
		}

		shop, ok := s.data.shop(id)
		if !ok {
			writeDetail(w, http.StatusNotFound, "Barbershop not found.")
			return
		}
		if shop.SubscriptionStatus == SubscriptionExpired {
			log.Ctx(r.Context()).Info().Int("barbershopId", id).Msg("request for suspended barbershop")
			writeDetail(w, http.StatusForbidden, "Subscription expired")
			return
		}

		ctx := context.WithValue(r.Context(), shopKey, shop)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
