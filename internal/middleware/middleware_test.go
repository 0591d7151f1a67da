package middleware

import (
	"context"
	"doc-organizer-go/internal/model"
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/token"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeUsers struct {
	service.UserService
	users map[string]*model.User
}

func (f *fakeUsers) GetProfile(username string) (*model.User, error) {
	u, ok := f.users[username]
	if !ok {
		return nil, errors.New("record not found")
	}
	return u, nil
}

type fakeBlacklist struct {
	revoked map[string]bool
	err     error
}

func (f *fakeBlacklist) Add(_ context.Context, id string, _ time.Duration) error {
	f.revoked[id] = true
	return nil
}

func (f *fakeBlacklist) Contains(_ context.Context, id string) (bool, error) {
	return f.revoked[id], f.err
}

func newAuthRouter(jwt *token.JWTManager, users *fakeUsers, blacklist *fakeBlacklist) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	authed := r.Group("/", AuthMiddleware(jwt, users, blacklist))
	authed.GET("/me", func(c *gin.Context) {
		user := c.MustGet("user").(*model.User)
		c.String(http.StatusOK, user.Username)
	})
	authed.GET("/admin", AdminAuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwt := token.NewJWTManager("test-secret", 1, 1)
	users := &fakeUsers{users: map[string]*model.User{
		"alice": {ID: 1, Username: "alice", Role: model.RoleUser},
		"root":  {ID: 2, Username: "root", Role: model.RoleAdmin},
	}}
	blacklist := &fakeBlacklist{revoked: map[string]bool{}}
	r := newAuthRouter(jwt, users, blacklist)

	access, err := jwt.GenerateToken(1, "alice", model.RoleUser)
	require.NoError(t, err)
	refresh, err := jwt.GenerateRefreshToken(1, "alice", model.RoleUser)
	require.NoError(t, err)
	ghost, err := jwt.GenerateToken(9, "ghost", model.RoleUser)
	require.NoError(t, err)

	w := get(r, "/me", access)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", refresh).Code, "refresh token cannot access the API")
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", ghost).Code)

	claims, err := jwt.VerifyToken(access)
	require.NoError(t, err)
	blacklist.revoked[claims.ID] = true
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", access).Code)
}

func TestAuthMiddleware_BlacklistOutageAllows(t *testing.T) {
	jwt := token.NewJWTManager("test-secret", 1, 1)
	users := &fakeUsers{users: map[string]*model.User{"alice": {ID: 1, Username: "alice"}}}
	r := newAuthRouter(jwt, users, &fakeBlacklist{revoked: map[string]bool{}, err: errors.New("redis down")})

	access, err := jwt.GenerateToken(1, "alice", model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get(r, "/me", access).Code)
}

func TestAdminAuthMiddleware(t *testing.T) {
	jwt := token.NewJWTManager("test-secret", 1, 1)
	users := &fakeUsers{users: map[string]*model.User{
		"alice": {ID: 1, Username: "alice", Role: model.RoleUser},
		"root":  {ID: 2, Username: "root", Role: model.RoleAdmin},
	}}
	r := newAuthRouter(jwt, users, &fakeBlacklist{revoked: map[string]bool{}})

	userToken, err := jwt.GenerateToken(1, "alice", model.RoleUser)
	require.NoError(t, err)
	adminToken, err := jwt.GenerateToken(2, "root", model.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", userToken).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", adminToken).Code)
}

func TestRequestLogger_KeepsIncomingID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("requestID")) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", w.Body.String())
}
