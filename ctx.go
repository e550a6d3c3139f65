package auth

import (
	"context"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// LocalsUserKey is the request locals key holding the current user
const LocalsUserKey = "current_user"

// Locals is the request scoped storage shared by *fiber.Ctx and
// router.Context.
type Locals interface {
	Locals(key any, value ...any) any
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok && raw != nil
}

// CurrentUser returns the authenticated user of the request, if any
func CurrentUser(c Locals) (*User, bool) {
	user, ok := c.Locals(LocalsUserKey).(*User)
	return user, ok && user != nil
}
