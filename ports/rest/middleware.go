package rest

import (
	"net/http"

	"github.com/GabrielCarpr/mediator/auth"
	"github.com/GabrielCarpr/mediator/errors"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationHeader carries the correlation ID of a request, in and out
const CorrelationHeader = "X-Correlation-ID"

// Correlate gives every request a correlation ID, taken from CorrelationHeader when
// it is a valid one, and logs the request once served
func Correlate(l *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if id, err := uuid.Parse(c.GetHeader(CorrelationHeader)); err == nil {
			ctx = log.WithGivenID(ctx, id)
		}
		ctx = log.WithID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(CorrelationHeader, log.GetID(ctx).String())

		c.Next()

		l.Info(ctx, "HTTP request", log.F{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})
	}
}

// Authenticate reads the credentials of a bearer token into the request context.
// Requests without a token carry blank credentials; invalid tokens are rejected.
func Authenticate(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		creds, err := auth.FromBearer(c.GetHeader("Authorization"), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.Error{Code: http.StatusUnauthorized, Message: "Invalid token"})
			return
		}
		c.Request = c.Request.WithContext(auth.WithCredentials(c.Request.Context(), creds))
		c.Next()
	}
}
