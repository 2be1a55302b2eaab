// Package auth provides Gin middleware for enforcing bearer JWT auth.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LocalDevSubject is the identity injected when auth is disabled.
const LocalDevSubject = "local-dev"

// AnonRole is the role Supabase puts in its public anon-key tokens. Those
// tokens are signed with the project secret but identify nobody.
const AnonRole = "anon"

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	// DenyRoles refuses otherwise valid tokens whose role claim is listed.
	DenyRoles   []string
	DisableAuth bool
	Logger      *zap.Logger
}

// authFailure is a rejected request: the log line and the client message.
type authFailure struct {
	log     string
	message string
	err     error
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier *Verifier, cfg MiddlewareConfig) gin.HandlerFunc {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	disabled := AuthDisabled(cfg.DisableAuth)
	denied := make(map[string]bool, len(cfg.DenyRoles))
	for _, role := range cfg.DenyRoles {
		denied[strings.ToLower(role)] = true
	}

	return func(c *gin.Context) {
		var claims *Claims
		if disabled {
			claims = &Claims{
				Subject: LocalDevSubject,
				Issuer:  "local",
				Raw:     map[string]any{"sub": LocalDevSubject},
			}
		} else {
			var fail *authFailure
			claims, fail = authenticate(verifier, c.GetHeader("Authorization"), denied)
			if fail != nil {
				fields := []zap.Field{zap.String("path", c.Request.URL.Path)}
				if fail.err != nil {
					fields = append(fields, zap.Error(fail.err))
				}
				logger.Info("auth failure: "+fail.log, fields...)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fail.message})
				return
			}
		}

		c.Request = c.Request.WithContext(WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// authenticate turns an Authorization header into verified claims for a
// metered caller. Every token must name a subject, since usage is keyed by it.
func authenticate(verifier *Verifier, header string, denied map[string]bool) (*Claims, *authFailure) {
	if verifier == nil {
		return nil, &authFailure{log: "verifier not configured", message: "auth verifier not configured"}
	}
	if header == "" {
		return nil, &authFailure{log: "missing Authorization header", message: "missing authorization header"}
	}
	token, ok := extractBearerToken(header)
	if !ok {
		return nil, &authFailure{log: "malformed Authorization header", message: "invalid authorization header"}
	}

	claims, err := verifier.Verify(token)
	if err != nil {
		return nil, &authFailure{log: "token invalid", message: "invalid token", err: err}
	}
	if denied[strings.ToLower(claims.Role)] {
		return nil, &authFailure{log: "role " + claims.Role + " not allowed", message: "sign in required"}
	}
	if claims.Subject == "" {
		return nil, &authFailure{log: "token has no subject", message: "invalid token"}
	}
	return claims, nil
}

func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
