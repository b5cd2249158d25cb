package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

func TestOriginAllowed(t *testing.T) {
	require.True(t, OriginAllowed(nil, "https://evil.example"))
	require.True(t, OriginAllowed([]string{"https://app.example"}, ""))
	require.True(t, OriginAllowed([]string{"https://app.example"}, "https://APP.example"))
	require.False(t, OriginAllowed([]string{"https://app.example"}, "https://evil.example"))
}

func TestOrigin_CORSHeaders(t *testing.T) {
	r := gin.New()
	r.Use(Origin([]string{"https://app.example"}))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestOrigin_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(Origin(nil))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.OPTIONS("/x", func(c *gin.Context) { c.String(http.StatusOK, "should not run") })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://any.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://any.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMiddlewareManager_AbortStopsChain(t *testing.T) {
	m := NewManager()
	var order []string
	m.Add(func(c *gin.Context) { order = append(order, "one") })
	m.Add(func(c *gin.Context) { order = append(order, "two"); c.AbortWithStatus(http.StatusTeapot) })
	m.Add(func(c *gin.Context) { order = append(order, "three") })
	require.Equal(t, 3, m.Len())

	r := gin.New()
	r.Use(m.Use())
	r.GET("/", func(c *gin.Context) { order = append(order, "handler") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusTeapot, w.Code)
	require.Equal(t, []string{"one", "two"}, order)

	m.Clear()
	require.Equal(t, 0, m.Len())
}

func TestRoutes_AuthOnlyWhereAsked(t *testing.T) {
	r := gin.New()
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	rt := NewRoutes(r, deny)
	rt.GET("/open", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{})
	rt.GET("/closed", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{IsAuth: true})
	rt.POST("/closed", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{IsAuth: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/closed", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/closed", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestZapRecovery(t *testing.T) {
	r := gin.New()
	r.Use(ZapLogger(zap.NewNop()), ZapRecovery(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}
