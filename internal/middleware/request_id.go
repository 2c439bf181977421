package middleware

import (
	"github.com/gin-gonic/gin"
	nanoid "github.com/jaevor/go-nanoid"
)

const (
	RequestIDHeader = "X-Request-ID"
	contextRequest  = "request_id"
)

// RequestID propagates the caller's X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	gen, err := nanoid.Standard(21)
	if err != nil {
		panic(err)
	}
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = gen()
		}
		c.Set(contextRequest, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

func RequestIDFrom(c *gin.Context) string {
	if id := c.GetString(contextRequest); id != "" {
		return id
	}
	return c.GetHeader(RequestIDHeader)
}
