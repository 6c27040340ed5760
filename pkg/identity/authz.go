package identity

import (
	"context"

	apperrors "readerhub/pkg/errors"
)

// Require returns the caller identity or a NotAuthenticated error.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, apperrors.Unauthorized("Authentication required")
	}
	return id, nil
}

// RequireAny returns the caller when it is privileged or matches one of the
// allowed role/subject pairs, and a NotAuthorized error otherwise.
func RequireAny(ctx context.Context, allowed ...Grant) (Identity, error) {
	id, err := Require(ctx)
	if err != nil {
		return Identity{}, err
	}
	if id.IsPrivileged() {
		return id, nil
	}
	for _, g := range allowed {
		if id.Is(g.Role, g.Subject) {
			return id, nil
		}
	}
	return Identity{}, apperrors.Forbidden("Caller is not allowed to perform this operation")
}

// RequirePrivileged allows only admin and system callers.
func RequirePrivileged(ctx context.Context) (Identity, error) {
	return RequireAny(ctx)
}

// Grant names a role/subject pair allowed to act on a resource.
type Grant struct {
	Role    Role
	Subject string
}

func Client(subject string) Grant   { return Grant{Role: RoleActor, Subject: subject} }
func Provider(subject string) Grant { return Grant{Role: RoleReader, Subject: subject} }
