package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

const bearerPrefix = "bearer "

func bearerToken(header string) (string, bool) {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(bearerPrefix):])
	return tok, tok != ""
}

// UnaryInterceptor attaches the identity of an "authorization: Bearer <jwt>"
// header to the request context. Requests without a header pass through
// unauthenticated; a bad token is rejected.
func UnaryInterceptor(tokens *TokenManager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		for _, v := range md.Get("authorization") {
			tok, ok := bearerToken(v)
			if !ok {
				return nil, svcErr.Unauthenticated("malformed authorization header")
			}
			id, err := tokens.Parse(tok)
			if err != nil {
				return nil, svcErr.Unauthenticated("invalid token")
			}
			ctx = WithIdentity(ctx, id)
			break
		}
		return handler(ctx, req)
	}
}

// GinMiddleware is the HTTP counterpart of UnaryInterceptor.
func GinMiddleware(tokens *TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		tok, ok := bearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}
		id, err := tokens.Parse(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}
