// Package auth carries access control credentials in the context and enforces the
// scopes messages require before they reach their handlers.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/GabrielCarpr/mediator/errors"
	"github.com/GabrielCarpr/mediator/transport"
	"github.com/google/uuid"
)

var (
	// AuthCtxKey is the key used for storing credentials in the context
	AuthCtxKey = authCtxKeyType("authCtx")

	// Forbidden is an error returned when access is denied
	Forbidden = errors.Error{Code: 403, Message: "Forbidden"}

	// BlankCredentials are carried by unauthenticated users of the system
	BlankCredentials = Credentials{}
)

type authCtxKeyType string

func (k authCtxKeyType) String() string {
	return string(k)
}

// Credentials is an access control record
type Credentials struct {
	Scopes []string  `json:"scopes"`
	ID     uuid.UUID `json:"id"`
}

// Valid determines if the Credentials are valid
func (c Credentials) Valid() bool {
	return c.ID != uuid.Nil
}

// WithCredentials returns a ctx with access control credentials
func WithCredentials(ctx context.Context, c Credentials) context.Context {
	return context.WithValue(ctx, AuthCtxKey, c)
}

// GetCredentials returns the context's credentials
func GetCredentials(ctx context.Context) Credentials {
	cred, ok := ctx.Value(AuthCtxKey).(Credentials)
	if !ok {
		return BlankCredentials
	}
	return cred
}

// Carry registers the credentials with a transport codec, so forwarded messages are
// handled with the credentials they were sent with
func Carry(c *transport.Codec) {
	transport.RegisterKey[Credentials](c, AuthCtxKey)
}

// IsUser returns whether the provided user ID
// is the authenticated user
func IsUser(ctx context.Context, testID uuid.UUID) bool {
	creds := GetCredentials(ctx)
	if !creds.Valid() {
		return false
	}
	return testID == creds.ID
}

// UserScope returns a single scope that identifies a user
func UserScope(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID.String())
}

// TestCtx is a testing utility for generating any
// access control ctx
func TestCtx(userID uuid.UUID, scopes ...string) context.Context {
	creds := Credentials{append(scopes, UserScope(userID)), userID}
	return WithCredentials(context.Background(), creds)
}

// Enforce ensures that the context stores scopes required to satisfy
// the required scopes. Groups are alternatives, and every scope of a group
// is required, eg:
// Enforce(ctx, []string{"users:write"}, []string{"self:write"})
// So the user must have either users:write, or self:write, or both
func Enforce(ctx context.Context, requiredScopes ...[]string) error {
	if len(requiredScopes) == 0 {
		return nil
	}

	creds := GetCredentials(ctx)
	if !creds.Valid() || len(creds.Scopes) == 0 {
		return Forbidden
	}

	for _, group := range requiredScopes {
		if hasAll(group, creds.Scopes) {
			return nil
		}
	}
	return Forbidden
}

func hasAll(required, held []string) bool {
	for _, scope := range required {
		found := false
		for _, h := range held {
			if scopeSatisfiesScope(scope, h) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// scopeSatisfiesScope matches resource:action scopes, where the action * grants
// every action on the resource
func scopeSatisfiesScope(requiredScope string, accessScope string) bool {
	if requiredScope == accessScope {
		return true
	}

	rResource, _, _ := strings.Cut(requiredScope, ":")
	aResource, aAction, ok := strings.Cut(accessScope, ":")
	return ok && rResource == aResource && aAction == "*"
}
