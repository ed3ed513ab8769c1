// Package middleware provides HTTP middleware shared by the coordinator
// and presence-node gin routers.
//
// RequestID's id is carried past the HTTP layer: the presence node threads
// it onto each Session so a session's connect and disconnect log lines
// share one correlation id.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID assigns a correlation id to the request, preferring one a
// caller already supplied (the coordinator and presence node both sit
// behind each other and behind clients that may already carry one) over
// minting a fresh uuid. The id is stashed in the gin context and echoed
// back on the response header so it can be matched to a log line after
// the fact on either side of the call.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// GetRequestID returns the correlation id RequestID stored on c, or "" if
// the middleware never ran (e.g. a handler invoked directly from a test).
func GetRequestID(c *gin.Context) string {
	requestID, exists := c.Get(RequestIDKey)
	if !exists {
		return ""
	}
	id, _ := requestID.(string)
	return id
}
