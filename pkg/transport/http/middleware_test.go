package httptransport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/porthorian/openperm/pkg/errors"
)

type stubAuthorizer struct {
	granted map[string]map[string]bool
	err     error
	calls   int
}

func (s *stubAuthorizer) IsGrantedAll(ctx context.Context, roleID string, permissions []string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	for _, permission := range permissions {
		if !s.granted[roleID][permission] {
			return false, nil
		}
	}
	return true, nil
}

func (s *stubAuthorizer) IsGrantedAny(ctx context.Context, roleID string, permissions []string) (bool, error) {
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	for _, permission := range permissions {
		if s.granted[roleID][permission] {
			return true, nil
		}
	}
	return false, nil
}

func newRouter(authorizer Authorizer, config MiddlewareConfig, permissions ...string) http.Handler {
	router := chi.NewRouter()
	router.With(Middleware(authorizer, config, permissions...)).Get("/leads", func(w http.ResponseWriter, r *http.Request) {
		roleID, _ := RoleFromContext(r.Context())
		_, _ = w.Write([]byte(roleID))
	})
	return router
}

func serve(handler http.Handler, roleID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	if roleID != "" {
		req.Header.Set("X-Role-ID", roleID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareStatuses(t *testing.T) {
	authorizer := &stubAuthorizer{granted: map[string]map[string]bool{
		"sales":  {"lead:leads:view": true, "lead:leads:edit": true},
		"viewer": {"lead:leads:view": true},
	}}

	tests := []struct {
		name     string
		matchAny bool
		roleID   string
		want     int
	}{
		{name: "no role", roleID: "", want: http.StatusUnauthorized},
		{name: "all granted", roleID: "sales", want: http.StatusOK},
		{name: "one missing", roleID: "viewer", want: http.StatusForbidden},
		{name: "any granted", matchAny: true, roleID: "viewer", want: http.StatusOK},
		{name: "none granted", matchAny: true, roleID: "guest", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.MatchAny = tt.matchAny

			rec := serve(newRouter(authorizer, config, "lead:leads:view", "lead:leads:edit"), tt.roleID)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, tt.roleID, rec.Body.String())
			}
		})
	}
}

func TestMiddlewareWithoutPermissionsOnlyRequiresRole(t *testing.T) {
	authorizer := &stubAuthorizer{}
	handler := newRouter(authorizer, MiddlewareConfig{})

	assert.Equal(t, http.StatusOK, serve(handler, "anyone").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(handler, "").Code)
	assert.Zero(t, authorizer.calls)
}

func TestMiddlewareMapsAuthorizerErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown role", err: oerrors.New(oerrors.CodeNotFound, "role not found"), want: http.StatusForbidden},
		{name: "storage down", err: oerrors.Wrap(oerrors.CodeStorageUnavailable, "load", errors.New("down")), want: http.StatusServiceUnavailable},
		{name: "bad permission", err: oerrors.New(oerrors.CodeInvalidPermission, "invalid permission"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newRouter(&stubAuthorizer{err: tt.err}, DefaultConfig(), "lead:leads:view")
			assert.Equal(t, tt.want, serve(handler, "sales").Code)
		})
	}
}

func TestMiddlewareCustomResolverAndStatus(t *testing.T) {
	resolveErr := errors.New("bad session")
	config := MiddlewareConfig{
		FailureStatusCode: http.StatusNotFound,
		RoleResolver: func(r *http.Request) (string, error) {
			if r.URL.Query().Get("role") == "broken" {
				return "", resolveErr
			}
			return r.URL.Query().Get("role"), nil
		},
	}
	handler := newRouter(&stubAuthorizer{}, config, "lead:leads:view")

	for role, want := range map[string]int{
		"broken": http.StatusUnauthorized,
		"sales":  http.StatusNotFound,
	} {
		req := httptest.NewRequest(http.MethodGet, "/leads?role="+role, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, role)
	}
}

func TestRoleFromContextWithoutMiddleware(t *testing.T) {
	_, ok := RoleFromContext(context.Background())
	assert.False(t, ok)
}
