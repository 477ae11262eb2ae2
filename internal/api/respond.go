package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	clierr "github.com/intentfi/intentfi/internal/errors"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondInvalid(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// respondError maps err onto a status. Validation problems are 400 with
// their message; everything else is 500 with a fixed message, plus the
// underlying error in dev mode.
func (s *Server) respondError(c *gin.Context, fallback string, err error) {
	if clierr.HasCode(err, clierr.CodeUsage) || clierr.HasCode(err, clierr.CodeUnsupported) {
		msg := err.Error()
		if cErr, ok := clierr.As(err); ok {
			msg = cErr.Message
		}
		respondInvalid(c, msg)
		return
	}
	body := gin.H{"success": false, "error": fallback, "type": clierr.TypeOf(err)}
	if s.opts.DevMode {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, body)
}
