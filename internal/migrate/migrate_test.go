package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ivan-Madera/autorizador/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{
		"00001_users.sql",
		"00002_sessions.sql",
		"00003_auth_limiter.sql",
	}, names)

	for _, n := range names {
		b, err := fs.ReadFile(migrations.FS, n)
		require.NoError(t, err)
		require.Contains(t, string(b), "-- +goose Up", n)
		require.Contains(t, string(b), "-- +goose Down", n)
	}
}

func TestSessionsSchema(t *testing.T) {
	b, err := fs.ReadFile(migrations.FS, "00002_sessions.sql")
	require.NoError(t, err)
	s := string(b)
	for _, want := range []string{
		"refresh_token_hash",
		"replaced_by        uuid REFERENCES sessions (id)",
		"sessions_refresh_token_hash_uq",
	} {
		require.True(t, strings.Contains(s, want), want)
	}
}
