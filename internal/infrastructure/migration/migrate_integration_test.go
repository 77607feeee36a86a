//go:build integration

package migration_test

import (
	"testing"

	"github.com/erp/fulfillment/internal/infrastructure/migration"
	"github.com/erp/fulfillment/internal/infrastructure/persistence/testdb"
	"github.com/erp/fulfillment/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrator_RoundTrip(t *testing.T) {
	db := testdb.NewPostgres(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	names, err := migration.ListMigrations(migrations.FS)
	require.NoError(t, err)
	latest := uint(len(names))

	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(), "re-running up on a current schema is a no-op")

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, latest-1, version)
	assert.False(t, db.Migrator().HasTable("inboxes"))

	require.NoError(t, m.Up())
	assert.True(t, db.Migrator().HasTable("inboxes"))

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, db.Migrator().HasTable("orders"))
}
