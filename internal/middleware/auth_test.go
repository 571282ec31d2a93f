package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"anoa.com/lostfound/internal/entity"
	"anoa.com/lostfound/internal/testutil/memstore"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, subject, key string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	s, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newRouter(store *memstore.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(store.Users(), secret)

	r := gin.New()
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	r.GET("/admin", m.RequireAuth(), m.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	store := memstore.New()
	user := store.PutUser(entity.User{Name: "Alice", Email: "alice@campus.test"})
	r := newRouter(store)
	valid := sign(t, user.ID.String(), secret, time.Now().Add(time.Hour))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK},
		{"query token", "", "?token=" + valid, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "Bearer " + sign(t, user.ID.String(), "other", time.Now().Add(time.Hour)), "", http.StatusUnauthorized},
		{"expired", "Bearer " + sign(t, user.ID.String(), secret, time.Now().Add(-time.Minute)), "", http.StatusUnauthorized},
		{"subject not a uuid", "Bearer " + sign(t, "alice", secret, time.Now().Add(time.Hour)), "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				require.Equal(t, user.ID.String(), w.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	store := memstore.New()
	student := store.PutUser(entity.User{Name: "Alice", Email: "alice@campus.test", Role: entity.RoleStudent})
	admin := store.PutUser(entity.User{Name: "Root", Email: "root@campus.test", Role: entity.RoleAdmin})
	r := newRouter(store)

	for _, tc := range []struct {
		user entity.User
		want int
	}{
		{student, http.StatusForbidden},
		{admin, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, tc.user.ID.String(), secret, time.Now().Add(time.Hour)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, tc.want, w.Code, tc.user.Name)
	}
}
