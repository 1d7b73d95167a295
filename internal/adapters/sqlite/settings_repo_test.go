package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSettingsRepository_DefaultsAndPersist(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t).SQL)

	got, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSettings(), got)

	want := domain.Settings{
		PollIntervalMs:       500,
		EstimatedDurationSec: 30,
		ProgressCap:          0.9,
		DefaultMode:          domain.ModeSelected,
		DefaultTarget:        "42",
	}
	updated, err := repo.Put(ctx, want)
	require.NoError(t, err)
	require.Equal(t, want, updated)

	again, err := repo.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, want, again)
}

func TestSettingsRepository_PartialRowKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.SQL.ExecContext(ctx, `INSERT INTO settings(key, value_json, updated_at) VALUES(?, ?, ?)`,
		settingsKey, []byte(`{"pollIntervalMs":750}`), "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	got, err := NewSettingsRepository(db.SQL).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(750), got.PollIntervalMs)
	require.Equal(t, domain.DefaultSettings().EstimatedDurationSec, got.EstimatedDurationSec)
	require.Equal(t, domain.ModeChampion, got.DefaultMode)
}

func TestSettingsRepository_UnsubmittableDefaultsFallBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.SQL.ExecContext(ctx, `INSERT INTO settings(key, value_json, updated_at) VALUES(?, ?, ?)`,
		settingsKey, []byte(`{"pollIntervalMs":900,"defaultMode":"selected"}`), "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	got, err := NewSettingsRepository(db.SQL).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(900), got.PollIntervalMs)
	require.Equal(t, domain.ModeChampion, got.DefaultMode)
	require.Empty(t, got.DefaultTarget)
}

func TestMigrate_RenamesLegacyModes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.SQL.ExecContext(ctx, `INSERT INTO settings(key, value_json, updated_at) VALUES(?, ?, ?)`,
		settingsKey, []byte(`{"pollIntervalMs":600,"defaultMode":"ensemble"}`), "2026-01-01T00:00:00Z")
	require.NoError(t, err)
	_, err = db.SQL.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = 2`)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx))

	got, err := NewSettingsRepository(db.SQL).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.ModeCouncil, got.DefaultMode)
	require.Equal(t, int64(600), got.PollIntervalMs)
}

func TestSettingsRepository_CorruptRowFallsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := db.SQL.ExecContext(ctx, `INSERT INTO settings(key, value_json, updated_at) VALUES(?, ?, ?)`,
		settingsKey, []byte(`{not json`), "2026-01-01T00:00:00Z")
	require.NoError(t, err)

	got, err := NewSettingsRepository(db.SQL).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DefaultSettings(), got)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))

	var n int
	require.NoError(t, db.SQL.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	require.Equal(t, 2, n)
}

func TestExtractUp(t *testing.T) {
	in := "-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;\n"
	require.Equal(t, "CREATE TABLE a(x);", extractUp(in))
}
