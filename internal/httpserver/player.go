// internal/httpserver/player.go
//
// Anonymous player identity.
// Every caller of a player-scoped route gets a stable player id carried in a
// signed HS256 token. Browsers keep it in an HttpOnly cookie; other clients
// can read X-Player-Token once and send it back as a Bearer token.

package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const playerTokenHeader = "X-Player-Token"

type ctxPlayerKey struct{}

// playerID returns the id attached by withPlayer, or "" outside it.
func playerID(r *http.Request) string {
	id, _ := r.Context().Value(ctxPlayerKey{}).(string)
	return id
}

// withPlayer resolves the caller's player id, issuing a new one when the
// request carries no valid token.
func (s *Server) withPlayer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := s.parsePlayer(s.bearerOrCookie(r))
			if err != nil {
				id = uuid.NewString()
				tok, exp, err := s.signPlayer(id)
				if err != nil {
					log.Error().Err(err).Msg("sign player token")
					writeError(w, http.StatusInternalServerError, "token_failed")
					return
				}
				s.setPlayerCookie(w, tok, exp)
				w.Header().Set(playerTokenHeader, tok)
			}
			ctx := context.WithValue(r.Context(), ctxPlayerKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var errNoToken = errors.New("no player token")

// signPlayer issues a token for id valid for the configured TTL.
func (s *Server) signPlayer(id string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	return tok, exp, err
}

// parsePlayer validates a token and returns its subject.
func (s *Server) parsePlayer(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", errNoToken
	}
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errNoToken
	}
	return claims.Subject, nil
}

func (s *Server) setPlayerCookie(w http.ResponseWriter, token string, exp time.Time) {
	sameSite := http.SameSiteLaxMode
	if s.cfg.Production {
		sameSite = http.SameSiteNoneMode // cross-site client in production
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Production,
		SameSite: sameSite,
		Expires:  exp,
	})
}

func (s *Server) bearerOrCookie(r *http.Request) string {
	// Authorization: Bearer <token>
	if a := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(a), "bearer ") {
		return strings.TrimSpace(a[7:])
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}
