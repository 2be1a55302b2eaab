package app

import (
	"errors"
	"net/http"

	"github.com/aloewind/exportremix-sub001/app/quota"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// inputError is a caller mistake, reported as 400 and never retried.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func badInput(msg string) error { return &inputError{msg: msg} }

// respondError maps an error class to its status code. Unknown errors are
// infrastructure failures and their detail is not echoed.
func (s *Server) respondError(c *gin.Context, err error) {
	var in *inputError
	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &in):
		c.JSON(http.StatusBadRequest, gin.H{"error": in.msg})
	case errors.Is(err, quota.ErrInvalidAction):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &exceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":     exceeded.Error(),
			"remaining": exceeded.Remaining,
			"limit":     exceeded.Limit,
		})
	default:
		s.requestLog(c).Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
