package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_DerivesStableID(t *testing.T) {
	p := NewSimulatedProvider(0, []byte("pepper"))

	a, err := p.Login(context.Background(), Credentials{Email: "Amina@must.ac.ug", Password: "x"})
	require.NoError(t, err)
	b, err := p.Login(context.Background(), Credentials{Email: " amina@must.ac.ug", Password: "y"})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, a.ID, 32)
	assert.Equal(t, "amina", a.DisplayName)
	assert.Equal(t, "amina@must.ac.ug", a.Email)
}

func TestLogin_PepperChangesID(t *testing.T) {
	creds := Credentials{Email: "amina@must.ac.ug", Password: "x"}

	a, err := NewSimulatedProvider(0, []byte("one")).Login(context.Background(), creds)
	require.NoError(t, err)
	b, err := NewSimulatedProvider(0, []byte("two")).Login(context.Background(), creds)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestLogin_MissingFields(t *testing.T) {
	p := NewSimulatedProvider(0, nil)

	tests := []struct {
		name  string
		creds Credentials
		field string
	}{
		{"no email", Credentials{Password: "x"}, "email"},
		{"bad email", Credentials{Email: "amina", Password: "x"}, "email"},
		{"trailing at", Credentials{Email: "amina@", Password: "x"}, "email"},
		{"no password", Credentials{Email: "amina@must.ac.ug"}, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Login(context.Background(), tt.creds)

			var fErr *FieldError
			require.ErrorAs(t, err, &fErr)
			assert.Equal(t, tt.field, fErr.Field)
		})
	}
}

func TestSignup_DisplayName(t *testing.T) {
	p := NewSimulatedProvider(0, []byte("pepper"))

	named, err := p.Signup(context.Background(), Registration{Email: "amina@must.ac.ug", Password: "x", DisplayName: "Amina N."})
	require.NoError(t, err)
	assert.Equal(t, "Amina N.", named.DisplayName)

	unnamed, err := p.Signup(context.Background(), Registration{Email: "amina@must.ac.ug", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "amina", unnamed.DisplayName)
	assert.Equal(t, named.ID, unnamed.ID)
}

func TestLogin_HonoursCancellation(t *testing.T) {
	p := NewSimulatedProvider(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Login(ctx, Credentials{Email: "amina@must.ac.ug", Password: "x"})

	require.ErrorIs(t, err, context.Canceled)
}

func TestLogin_Delay(t *testing.T) {
	p := NewSimulatedProvider(20*time.Millisecond, nil)

	start := time.Now()
	_, err := p.Login(context.Background(), Credentials{Email: "amina@must.ac.ug", Password: "x"})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
