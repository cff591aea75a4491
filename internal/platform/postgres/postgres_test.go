package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	got, err := migrateURL("postgres://audit:secret@db:5432/retireplan?sslmode=disable")
	require.NoError(t, err)
	assert.Equal(t, "pgx5://audit:secret@db:5432/retireplan?sslmode=disable", got)

	_, err = migrateURL("host=db user=audit")
	assert.Error(t, err)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
