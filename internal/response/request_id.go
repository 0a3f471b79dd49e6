package response

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKeyRequestID is the Gin context key under which the request ID is
// stored for the response envelope's metadata.
const ContextKeyRequestID = "request_id"

// requestIDHeader carries the ID in and out, so a proxy-assigned ID survives
// the round trip.
const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an ID: the caller's, if one
// arrived in the header, or a fresh UUID. The ID is echoed on the response
// header and stamped into the envelope metadata.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}

		c.Set(ContextKeyRequestID, reqID)
		c.Header(requestIDHeader, reqID)
		c.Next()
	}
}
