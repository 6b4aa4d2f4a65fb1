package grpctransport

import (
	"context"

	oerrors "github.com/porthorian/openperm/pkg/errors"
)

type Authorizer interface {
	IsGrantedAll(ctx context.Context, roleID string, permissions []string) (bool, error)
}

type UnaryHandler func(ctx context.Context, req any) (any, error)

type UnaryServerInfo struct {
	FullMethod string
}

type UnaryServerInterceptor func(ctx context.Context, req any, info *UnaryServerInfo, handler UnaryHandler) (any, error)

type ServerStream interface {
	Context() context.Context
}

type StreamHandler func(srv any, stream ServerStream) error

type StreamServerInfo struct {
	FullMethod string
}

type StreamServerInterceptor func(srv any, stream ServerStream, info *StreamServerInfo, handler StreamHandler) error

// RoleResolver reads the caller's role id from the call context, usually from
// incoming metadata.
type RoleResolver func(ctx context.Context) (string, error)

// InterceptorConfig maps full method names to the permissions they require.
// Methods without an entry only require a role.
type InterceptorConfig struct {
	RoleResolver      RoleResolver
	MethodPermissions map[string][]string
}

func UnaryInterceptor(authorizer Authorizer, config InterceptorConfig) UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *UnaryServerInfo, handler UnaryHandler) (any, error) {
		if err := authorize(ctx, authorizer, config, methodName(info)); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func StreamInterceptor(authorizer Authorizer, config InterceptorConfig) StreamServerInterceptor {
	return func(srv any, stream ServerStream, info *StreamServerInfo, handler StreamHandler) error {
		method := ""
		if info != nil {
			method = info.FullMethod
		}
		if err := authorize(stream.Context(), authorizer, config, method); err != nil {
			return err
		}
		return handler(srv, stream)
	}
}

func methodName(info *UnaryServerInfo) string {
	if info == nil {
		return ""
	}
	return info.FullMethod
}

func authorize(ctx context.Context, authorizer Authorizer, config InterceptorConfig, method string) error {
	if config.RoleResolver == nil {
		return oerrors.New(oerrors.CodeInvalidInput, "role resolver is required")
	}

	roleID, err := config.RoleResolver(ctx)
	if err != nil {
		return oerrors.Wrap(oerrors.CodePermissionDenied, "failed to resolve role", err)
	}
	if roleID == "" {
		return oerrors.New(oerrors.CodePermissionDenied, "role is required")
	}

	required := config.MethodPermissions[method]
	if len(required) == 0 {
		return nil
	}
	if authorizer == nil {
		return oerrors.ErrMissingRegistry
	}

	granted, err := authorizer.IsGrantedAll(ctx, roleID, required)
	if err != nil {
		if oerrors.IsCode(err, oerrors.CodeNotFound) {
			return oerrors.Wrap(oerrors.CodePermissionDenied, "permission denied for "+method, err)
		}
		return err
	}
	if !granted {
		return oerrors.New(oerrors.CodePermissionDenied, "permission denied for "+method)
	}
	return nil
}
