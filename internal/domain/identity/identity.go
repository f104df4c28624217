// Package identity provides who is using the storefront. The cart and the
// group delivery allocator only ever see an Identity id.
package identity

import (
	"context"
	"fmt"
)

// FieldError reports a missing or malformed input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Identity is a signed-in user.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Credentials holds login input.
type Credentials struct {
	Email    string
	Password string
}

// Registration holds signup input. DisplayName is optional.
type Registration struct {
	Email       string
	Password    string
	DisplayName string
}

// Provider authenticates users. Implementations may block; they must honour
// ctx cancellation.
type Provider interface {
	Login(ctx context.Context, creds Credentials) (*Identity, error)
	Signup(ctx context.Context, reg Registration) (*Identity, error)
	Logout(ctx context.Context, id *Identity) error
}
