package security

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"vhrealtime/service/identity"
	"vhrealtime/tools/errs"
)

// context key
// 后续 handler 统一用这个 key 读取
const PPCtxIdentityKey = "identity"

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.Identity, error)
}

type Options struct {
	Verifier TokenVerifier
	// 读取哪个请求头, 默认 "Authorization"
	HeaderToken string
	// 允许 ?token= 兜底，WebSocket 客户端无法设置请求头
	AllowQueryToken bool
}

func DefaultOptions(v TokenVerifier) *Options {
	return &Options{Verifier: v, HeaderToken: "Authorization"}
}

// BearerToken pulls the token out of "Bearer xxx"; a bare token is accepted as well.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) >= 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil || opts.Verifier == nil {
		panic("security: Middleware needs a verifier")
	}
	header := opts.HeaderToken
	if header == "" {
		header = "Authorization"
	}
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader(header))
		if token == "" && opts.AllowQueryToken {
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			abort(c)
			return
		}
		id, err := opts.Verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abort(c)
			return
		}
		c.Set(PPCtxIdentityKey, id)
		c.Next()
	}
}

func abort(c *gin.Context) {
	e := errs.ErrAuthenticationRejected
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": e.Code, "detail": e.Msg})
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(PPCtxIdentityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}
