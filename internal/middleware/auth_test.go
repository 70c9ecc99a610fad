package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", JWTRequired(), func(c *gin.Context) {
		user, _ := GetUserFromContext(c)
		c.JSON(http.StatusOK, user)
	})
	r.GET("/admin", JWTRequired(), AdminRequired(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doRequest(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRoundTrip(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := testRouter()

	token, err := IssueToken(7, "alice", false, time.Hour)
	require.NoError(t, err)

	w := doRequest(r, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":7`)
	assert.Contains(t, w.Body.String(), `"name":"alice"`)
}

func TestJWTMissingHeader(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	w := doRequest(testRouter(), "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTGarbageToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	w := doRequest(testRouter(), "/me", "not.a.token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTExpiredToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := testRouter()

	token, err := IssueToken(7, "alice", false, -time.Hour)
	require.NoError(t, err)

	w := doRequest(r, "/me", token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	r := testRouter()

	userToken, err := IssueToken(7, "alice", false, time.Hour)
	require.NoError(t, err)
	adminToken, err := IssueToken(1, "root", true, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, doRequest(r, "/admin", userToken).Code)
	assert.Equal(t, http.StatusOK, doRequest(r, "/admin", adminToken).Code)
}
