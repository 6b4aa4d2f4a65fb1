package httptransport

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-logr/logr"

	oerrors "github.com/porthorian/openperm/pkg/errors"
)

type Authorizer interface {
	IsGrantedAll(ctx context.Context, roleID string, permissions []string) (bool, error)
	IsGrantedAny(ctx context.Context, roleID string, permissions []string) (bool, error)
}

// RoleResolver extracts the caller's role id from a request. An empty id
// means the request carries no role.
type RoleResolver func(r *http.Request) (string, error)

type MiddlewareConfig struct {
	RoleHeader   string
	RoleResolver RoleResolver
	// MatchAny grants the request when any listed permission is granted.
	MatchAny                  bool
	FailureStatusCode         int
	UnauthenticatedStatusCode int
	Logger                    logr.Logger
}

type roleContextKey struct{}

func DefaultConfig() MiddlewareConfig {
	return MiddlewareConfig{
		RoleHeader:                "X-Role-ID",
		FailureStatusCode:         http.StatusForbidden,
		UnauthenticatedStatusCode: http.StatusUnauthorized,
	}
}

func (c MiddlewareConfig) normalize() MiddlewareConfig {
	defaults := DefaultConfig()

	if c.RoleHeader == "" {
		c.RoleHeader = defaults.RoleHeader
	}
	if c.RoleResolver == nil {
		header := c.RoleHeader
		c.RoleResolver = func(r *http.Request) (string, error) {
			return strings.TrimSpace(r.Header.Get(header)), nil
		}
	}
	if c.FailureStatusCode == 0 {
		c.FailureStatusCode = defaults.FailureStatusCode
	}
	if c.UnauthenticatedStatusCode == 0 {
		c.UnauthenticatedStatusCode = defaults.UnauthenticatedStatusCode
	}
	if c.Logger.GetSink() == nil {
		c.Logger = logr.Discard()
	}
	return c
}

// Middleware admits a request only when its role holds permissions. With no
// permissions it only requires a role. The resolved role id is stored on the
// request context for RoleFromContext.
func Middleware(authorizer Authorizer, config MiddlewareConfig, permissions ...string) func(http.Handler) http.Handler {
	config = config.normalize()
	required := append([]string(nil), permissions...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roleID, err := config.RoleResolver(r)
			if err != nil {
				config.Logger.V(1).Info("role resolution failed", "path", r.URL.Path, "error", err.Error())
				writeStatus(w, config.UnauthenticatedStatusCode)
				return
			}
			if roleID == "" {
				writeStatus(w, config.UnauthenticatedStatusCode)
				return
			}

			if len(required) > 0 {
				granted, err := isGranted(r.Context(), authorizer, config.MatchAny, roleID, required)
				if err != nil {
					status := statusForError(err, config)
					if status >= http.StatusInternalServerError {
						config.Logger.Error(err, "permission check failed", "role_id", roleID, "path", r.URL.Path)
					}
					writeStatus(w, status)
					return
				}
				if !granted {
					config.Logger.V(1).Info("permission denied", "role_id", roleID, "path", r.URL.Path, "permissions", required)
					writeStatus(w, config.FailureStatusCode)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), roleContextKey{}, roleID)))
		})
	}
}

// RoleFromContext returns the role id stored by Middleware.
func RoleFromContext(ctx context.Context) (string, bool) {
	roleID, ok := ctx.Value(roleContextKey{}).(string)
	return roleID, ok && roleID != ""
}

func isGranted(ctx context.Context, authorizer Authorizer, matchAny bool, roleID string, permissions []string) (bool, error) {
	if authorizer == nil {
		return false, oerrors.ErrMissingRegistry
	}
	if matchAny {
		return authorizer.IsGrantedAny(ctx, roleID, permissions)
	}
	return authorizer.IsGrantedAll(ctx, roleID, permissions)
}

// Unknown roles are treated as denied; malformed permissions are a server bug.
func statusForError(err error, config MiddlewareConfig) int {
	switch {
	case oerrors.IsCode(err, oerrors.CodeNotFound):
		return config.FailureStatusCode
	case oerrors.IsCode(err, oerrors.CodeStorageUnavailable), oerrors.IsCode(err, oerrors.CodeCacheUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeStatus(w http.ResponseWriter, status int) {
	http.Error(w, http.StatusText(status), status)
}
