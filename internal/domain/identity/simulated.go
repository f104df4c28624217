package identity

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

var _ Provider = (*SimulatedProvider)(nil)

// SimulatedProvider accepts any well-formed credentials after an artificial
// delay. Identity ids are derived from the email so the same user always
// maps to the same cart slot.
type SimulatedProvider struct {
	delay  time.Duration
	pepper []byte
}

// NewSimulatedProvider creates a SimulatedProvider. The pepper keys the HMAC
// that derives identity ids from emails.
func NewSimulatedProvider(delay time.Duration, pepper []byte) *SimulatedProvider {
	return &SimulatedProvider{delay: delay, pepper: pepper}
}

// Login signs in with any non-empty email and password.
func (p *SimulatedProvider) Login(ctx context.Context, creds Credentials) (*Identity, error) {
	email, err := normalizeEmail(creds.Email)
	if err != nil {
		return nil, err
	}
	if creds.Password == "" {
		return nil, &FieldError{Field: "password", Message: "is required"}
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.identityFor(email, localPart(email)), nil
}

// Signup registers a user. The display name falls back to the email's local
// part when empty.
func (p *SimulatedProvider) Signup(ctx context.Context, reg Registration) (*Identity, error) {
	email, err := normalizeEmail(reg.Email)
	if err != nil {
		return nil, err
	}
	if reg.Password == "" {
		return nil, &FieldError{Field: "password", Message: "is required"}
	}
	name := strings.TrimSpace(reg.DisplayName)
	if name == "" {
		name = localPart(email)
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	return p.identityFor(email, name), nil
}

// Logout always succeeds.
func (p *SimulatedProvider) Logout(ctx context.Context, _ *Identity) error {
	return ctx.Err()
}

func (p *SimulatedProvider) wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *SimulatedProvider) identityFor(email, name string) *Identity {
	return &Identity{
		ID:          p.deriveID(email),
		DisplayName: name,
		Email:       email,
	}
}

// deriveID returns the first 16 bytes of HMAC-SHA256(pepper, email) as hex.
func (p *SimulatedProvider) deriveID(email string) string {
	mac := hmac.New(sha256.New, p.pepper)
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", &FieldError{Field: "email", Message: "is required"}
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", &FieldError{Field: "email", Message: "must be a valid address"}
	}
	return email, nil
}

func localPart(email string) string {
	return email[:strings.IndexByte(email, '@')]
}
