package handler

import (
	"context"

	apperrors "fnkit/errors"
	"fnkit/principal"
)

// PrincipalFromRequestAuthorizer attaches a lazy principal accessor built
// from the provider's authorizer claims. The accessor is only evaluated when
// a handler calls inv.Event.Principal(). When no claims are present it fails
// with UNAUTHORIZED if throwIfUnauthorized is set, and returns (nil, nil)
// otherwise.
func PrincipalFromRequestAuthorizer(throwIfUnauthorized bool) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			event := inv.Event
			event.SetPrincipalResolver(func() (*principal.Principal, error) {
				p := principal.FromClaims(event.Authorizer)
				if p == nil {
					if throwIfUnauthorized {
						return nil, apperrors.Unauthorized("request carries no authorizer claims")
					}
					return nil, nil
				}
				return p, nil
			})
			return next(ctx, inv)
		}
	}
}

// PrincipalFromBearerToken attaches a lazy principal accessor that verifies
// the Authorization bearer token. A missing token follows the same rule as
// PrincipalFromRequestAuthorizer; an invalid token always fails with
// UNAUTHORIZED.
func PrincipalFromBearerToken(verifier *principal.JWTVerifier, throwIfUnauthorized bool) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			event := inv.Event
			event.SetPrincipalResolver(func() (*principal.Principal, error) {
				token := event.Header("authorization")
				if token == "" {
					if throwIfUnauthorized {
						return nil, apperrors.Unauthorized("missing bearer token")
					}
					return nil, nil
				}

				claims, err := verifier.Verify(token)
				if err != nil {
					return nil, apperrors.Unauthorized("invalid bearer token").WithCause(err)
				}
				return principal.FromClaims(claims), nil
			})
			return next(ctx, inv)
		}
	}
}

// RequireRole fails with FORBIDDEN unless the principal carries role. It
// forces principal resolution, so it must run after a principal middleware.
func RequireRole(role string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *Invocation) (Response, error) {
			p, err := inv.Event.Principal()
			if err != nil {
				return Response{}, err
			}
			if p == nil {
				return Response{}, apperrors.Unauthorized("")
			}
			if !p.HasRole(role) {
				return Response{}, apperrors.Forbidden("missing role " + role)
			}
			return next(ctx, inv)
		}
	}
}
