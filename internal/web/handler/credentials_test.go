package handler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentials_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		creds Credentials
		want  error
	}{
		{name: "valid", creds: Credentials{Username: "jdoe", Password: "secret"}},
		{name: "unicode", creds: Credentials{Username: "jürgen", Password: "secret"}},
		{name: "max length", creds: Credentials{Username: strings.Repeat("a", MaxUsernameLen), Password: "x"}},
		{name: "missing username", creds: Credentials{Password: "secret"}, want: ErrMissingFields},
		{name: "missing password", creds: Credentials{Username: "jdoe"}, want: ErrMissingFields},
		{name: "control character", creds: Credentials{Username: "jdoe\x00", Password: "secret"}, want: ErrInvalidUsername},
		{name: "newline", creds: Credentials{Username: "jdoe\n", Password: "secret"}, want: ErrInvalidUsername},
		{
			name:  "too long",
			creds: Credentials{Username: strings.Repeat("a", MaxUsernameLen+1), Password: "x"},
			want:  ErrInvalidUsername,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.creds.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}

			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidUsername_Bytes(t *testing.T) {
	t.Parallel()

	// 129 two byte runes exceed the byte limit
	assert.False(t, ValidUsername(strings.Repeat("ü", 129)))
	assert.True(t, ValidUsername(strings.Repeat("ü", 128)))
}
