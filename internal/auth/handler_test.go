package auth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/milltrack-erp/milltrack/internal/auth"
	"github.com/milltrack-erp/milltrack/internal/shared"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo), sessionManager)
	return handler, sessionManager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func managerUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.DefaultCost)
	require.NoError(t, err)
	return &auth.User{
		ID:           1,
		Email:        "manager@mill.local",
		PasswordHash: string(hashed),
		IsManager:    true,
		IsActive:     true,
	}
}

func doLogin(t *testing.T, handler *auth.Handler, sessions *shared.SessionManager, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := chiMount(handler)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	mux.ServeHTTP(res, req)
	require.NoError(t, sessions.Commit(req.Context(), res, req, sess))
	return res
}

func TestLoginSuccessReportsCapability(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{user: managerUser(t)})

	res := doLogin(t, handler, sessions, `{"email":"manager@mill.local","password":"correctpass"}`)
	require.Equal(t, http.StatusOK, res.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["user_id"])
	require.Equal(t, true, body["manager"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	handler, sessions := newAuthHandler(t, &stubRepo{user: managerUser(t)})

	res := doLogin(t, handler, sessions, `{"email":"manager@mill.local","password":"wrongpass99"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginInactiveUser(t *testing.T) {
	user := managerUser(t)
	user.IsActive = false
	handler, sessions := newAuthHandler(t, &stubRepo{user: user})

	res := doLogin(t, handler, sessions, `{"email":"manager@mill.local","password":"correctpass"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestIdentityMiddlewarePopulatesManagerFlag(t *testing.T) {
	repo := &stubRepo{user: managerUser(t)}
	_, sessions := newAuthHandler(t, repo)
	service := auth.NewService(repo)

	var captured shared.Identity
	var found bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, found = shared.IdentityFromContext(r.Context())
	})
	mw := auth.IdentityMiddleware(service, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	sess.SetUser("1")
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	mw(inner).ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, found)
	require.Equal(t, int64(1), captured.UserID)
	require.True(t, captured.Manager)
}

func TestIdentityMiddlewareAnonymousPassesThrough(t *testing.T) {
	repo := &stubRepo{}
	_, sessions := newAuthHandler(t, repo)
	service := auth.NewService(repo)

	var found bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = shared.IdentityFromContext(r.Context())
	})
	mw := auth.IdentityMiddleware(service, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessions.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	mw(inner).ServeHTTP(httptest.NewRecorder(), req)
	require.False(t, found)
}

func chiMount(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}
