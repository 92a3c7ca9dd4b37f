package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"keepsake-backend/pkg/auth"
	"keepsake-backend/pkg/common"
	pkgerrors "keepsake-backend/pkg/errors"
)

// Authenticator bundles the JWT validator with the rate limiters it
// fronts. One instance is shared by all routes.
type Authenticator struct {
	validator      *auth.JWTValidator
	ipLimiter      auth.RateLimiter
	accountLimiter auth.RateLimiter
	logger         *zap.Logger
}

// NewAuthenticator creates an Authenticator
func NewAuthenticator(validator *auth.JWTValidator, ratePerMinute int, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		validator:      validator,
		ipLimiter:      auth.NewIPRateLimiter(ratePerMinute),
		accountLimiter: auth.NewAccountRateLimiter(2 * ratePerMinute),
		logger:         logger,
	}
}

// Require rejects requests without a valid bearer token
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allowIP(w, r) {
			return
		}

		token := extractToken(r)
		if token == "" {
			respondUnauthorized(w, "missing authentication token")
			return
		}

		principal, ok := a.authenticate(w, r, token)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetPrincipalInContext(r.Context(), principal)))
	})
}

// Optional attaches the caller identity when a token is present but
// lets anonymous requests through. Public reads use this so the
// permission engine can still see grants held by a signed-in caller.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allowIP(w, r) {
			return
		}

		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		principal, ok := a.authenticate(w, r, token)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetPrincipalInContext(r.Context(), principal)))
	})
}

func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request, token string) (*auth.Principal, bool) {
	claims, err := a.validator.ValidateToken(token)
	if err != nil {
		a.logger.Warn("invalid token",
			zap.Error(err),
			zap.String("path", r.URL.Path))

		switch err {
		case auth.ErrExpiredToken:
			respondUnauthorized(w, "token has expired")
		case auth.ErrInvalidSignature:
			respondUnauthorized(w, "invalid token signature")
		default:
			respondUnauthorized(w, "invalid token")
		}
		return nil, false
	}

	allowed, _ := a.accountLimiter.Allow(r.Context(), claims.AccountID)
	if !allowed {
		common.RespondError(w, http.StatusTooManyRequests, string(pkgerrors.ErrorTypeRateLimit), "account rate limit exceeded")
		return nil, false
	}

	return &auth.Principal{
		AccountID: claims.AccountID,
		Email:     claims.Email,
	}, true
}

func (a *Authenticator) allowIP(w http.ResponseWriter, r *http.Request) bool {
	allowed, _ := a.ipLimiter.Allow(r.Context(), clientIP(r))
	if !allowed {
		common.RespondError(w, http.StatusTooManyRequests, string(pkgerrors.ErrorTypeRateLimit), "rate limit exceeded")
		return false
	}
	return true
}

// extractToken pulls the JWT from the Authorization header or cookie
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
		return authHeader
	}

	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}

	return ""
}

// clientIP extracts the client IP address
func clientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	common.RespondError(w, http.StatusUnauthorized, string(pkgerrors.ErrorTypeUnauthorized), message)
}
