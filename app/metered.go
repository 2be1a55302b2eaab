package app

import (
	"context"
	"net/http"

	"github.com/aloewind/exportremix-sub001/app/aiproto"
	"github.com/aloewind/exportremix-sub001/app/models"
	"github.com/aloewind/exportremix-sub001/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const outcomeHeader = "X-AI-Outcome"

// meteredFunc performs the billable work of one request and returns the body.
type meteredFunc[Req any] func(c *gin.Context, acct models.Account, req *Req) (any, error)

// metered wraps fn in the quota gate: auth, bind, validate, check, act, and
// track only once the work succeeded and the caller is still there.
func metered[Req any](s *Server, action models.ActionType, validate func(*Req) error, fn meteredFunc[Req]) gin.HandlerFunc {
	return func(c *gin.Context) {
		acct, ok := accountFrom(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		var req Req
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, badInput("invalid request body"))
			return
		}
		if err := validate(&req); err != nil {
			s.respondError(c, err)
			return
		}

		ctx := c.Request.Context()
		decision, err := s.gate.CheckUsageLimit(ctx, acct, action)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if !decision.Allowed {
			s.requestLog(c).Info("quota exceeded",
				zap.String("user", acct.ID),
				zap.String("action", string(action)),
				zap.Int("limit", decision.Limit))
			s.respondError(c, decision.Err(action))
			return
		}

		body, err := fn(c, acct, &req)
		if err != nil {
			s.respondError(c, err)
			return
		}

		if err := ctx.Err(); err != nil {
			s.requestLog(c).Info("request abandoned, usage not tracked",
				zap.String("user", acct.ID),
				zap.String("action", string(action)),
				zap.Error(err))
			return
		}
		if err := s.gate.TrackUsage(ctx, acct, action); err != nil {
			s.requestLog(c).Error("usage not recorded", zap.String("user", acct.ID), zap.Error(err))
		}

		switch b := body.(type) {
		case csvFile:
			b.write(c)
		default:
			c.JSON(http.StatusOK, body)
		}
	}
}

func accountFrom(ctx context.Context) (models.Account, bool) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok || claims.Subject == "" {
		return models.Account{}, false
	}
	return models.Account{ID: claims.Subject, Email: claims.Email}, true
}

func setOutcome(c *gin.Context, state aiproto.State) {
	c.Header(outcomeHeader, string(state))
}
