package db

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"001_create_things.sql":  {Data: []byte("CREATE TABLE things (id INT)")},
		"002_add_index.sql":      {Data: []byte("CREATE INDEX idx_things ON things (id)")},
		"002_add_index_down.sql": {Data: []byte("DROP INDEX idx_things")},
		"README.md":              {Data: []byte("ignored")},
	}
}

func TestMigrator_Load(t *testing.T) {
	migrations, err := NewMigratorFS(nil, testMigrations()).Load()
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "create things", migrations[0].Description)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "002_add_index.sql", migrations[1].Filename)
}

func TestMigrator_LoadRejectsBadNames(t *testing.T) {
	_, err := NewMigratorFS(nil, fstest.MapFS{"init.sql": {Data: []byte("SELECT 1")}}).Load()
	assert.Error(t, err)

	_, err = NewMigratorFS(nil, fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1")},
		"001_b.sql": {Data: []byte("SELECT 2")},
	}).Load()
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestMigrator_EmbeddedMigrations(t *testing.T) {
	migrations, err := NewMigrator(nil).Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS transcripts")
}

func TestMigrator_MigrateAppliesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) FROM schema_version`).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX idx_things").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_version").
		WithArgs(2, "add index").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	applied, err := NewMigratorFS(mock, testMigrations()).Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_MigrateRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE things").
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	applied, err := NewMigratorFS(mock, testMigrations()).Migrate(context.Background())
	assert.ErrorContains(t, err, "failed to apply migration 1")
	assert.Zero(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpToDate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(2))

	applied, err := NewMigratorFS(mock, testMigrations()).Migrate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_Status(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_version").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(1))

	status, err := NewMigratorFS(mock, testMigrations()).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.True(t, status[0].Applied)
	assert.False(t, status[1].Applied)
}
