package identity

import (
	"context"
)

type Role string

const (
	RoleReader Role = "reader"
	RoleActor  Role = "actor"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleReader, RoleActor, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Identity is the authenticated caller of an operation. Subject is the
// provider ID for readers and the client ID for actors.
type Identity struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
}

// System is the identity used by background jobs and verified payment
// callbacks.
func System() Identity {
	return Identity{Subject: "system", Role: RoleSystem}
}

func (i Identity) IsPrivileged() bool {
	return i.Role == RoleAdmin || i.Role == RoleSystem
}

// Is reports whether the caller acts as subject in the given role.
func (i Identity) Is(role Role, subject string) bool {
	return i.Role == role && subject != "" && i.Subject == subject
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the caller identity and false for anonymous calls.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.Subject == "" || !id.Role.Valid() {
		return Identity{}, false
	}
	return id, true
}
