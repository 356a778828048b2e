package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsCopiesDoNotShareOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example")
	held, err := LoadProfile("development", WithWorkDir(t.TempDir()), WithVersionResolver(noVersion()))
	require.NoError(t, err)

	cp := held
	list := cp.CORSAllowedOrigins.List()
	list[0] = "*"

	assert.Equal(t, []string{"https://a.example"}, held.CORSAllowedOrigins.List())
	assert.False(t, held.CORSAllowedOrigins.Allows("https://evil.example"))
}

func TestOrigins_Allows(t *testing.T) {
	tests := []struct {
		name    string
		origins Origins
		origin  string
		want    bool
	}{
		{name: "wildcard", origins: NewOrigins("*"), origin: "https://any.example", want: true},
		{name: "exact", origins: NewOrigins("https://a.example"), origin: "https://a.example", want: true},
		{name: "case-insensitive", origins: NewOrigins("https://A.example"), origin: "https://a.example", want: true},
		{name: "not listed", origins: NewOrigins("https://a.example"), origin: "https://b.example"},
		{name: "empty list", origins: NewOrigins(), origin: "https://a.example"},
		{name: "blank entries dropped", origins: NewOrigins(" ", ""), origin: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.origins.Allows(tt.origin))
		})
	}
}

func TestOriginsHook(t *testing.T) {
	for _, data := range []any{" https://a.example , https://b.example", []string{"https://a.example", "https://b.example"}, []any{"https://a.example", "https://b.example"}} {
		got, err := originsHook(nil, originsType, data)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, got.(Origins).List())
	}

	_, err := originsHook(nil, originsType, 42)
	assert.Error(t, err)
}
