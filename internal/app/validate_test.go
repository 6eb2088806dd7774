package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ahsanhabibakik/rupomoti/internal/platform/errors"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"01712345678", "01712345678", true},
		{"+8801712345678", "01712345678", true},
		{"8801912345678", "01912345678", true},
		{"017-1234 5678", "01712345678", true},
		{"(017) 1234.5678", "01712345678", true},
		{"01212345678", "", false},
		{"0171234567", "", false},
		{"017123456789", "", false},
		{"+4401712345678", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizePhone(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidEmail(t *testing.T) {
	assert.True(t, validEmail("nadia@example.com"))
	assert.False(t, validEmail("nadia@localhost"))
	assert.False(t, validEmail("Nadia <nadia@example.com>"))
	assert.False(t, validEmail("not-an-email"))
	assert.Equal(t, "nadia@example.com", normalizeEmail("  Nadia@Example.COM "))
}

func TestRequireLength(t *testing.T) {
	assert.NoError(t, requireLength("name", "মুক্তা", 1, 6))
	assert.NoError(t, requireLength("notes", "", 0, 10))

	err := requireLength("name", "", 1, 100)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.TypeValidation))
	assert.Contains(t, err.Error(), "between 1 and 100")

	err = requireLength("notes", "too long", 0, 3)
	assert.Contains(t, err.Error(), "at most 3")
}
