package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockSettingsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *MonitorSettingsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewMonitorSettingsRepository(db, detector.DefaultConfig(), zap.NewNop())
	return db, mock, repo
}

func TestGetSettings_Stored(t *testing.T) {
	db, mock, repo := setupMockSettingsDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"enabled", "fall_threshold", "impact_threshold", "fall_window_ms",
		"jerk_threshold", "min_sample_interval_ms", "updated_at",
	}).AddRow(false, 0.5, 30.0, int64(400), 0.0, int64(20), now)

	mock.ExpectQuery(`SELECT`).
		WithArgs("tenant-1", "launcher-01").
		WillReturnRows(rows)

	settings, err := repo.GetSettings(context.Background(), "tenant-1", "launcher-01")

	require.NoError(t, err)
	assert.False(t, settings.Enabled)
	assert.Equal(t, 0.5, settings.Detector.FallThreshold)
	assert.Equal(t, 30.0, settings.Detector.ImpactThreshold)
	assert.Equal(t, int64(400), settings.Detector.FallWindowMs)
	// 0 in the row falls back to the service default
	assert.Equal(t, detector.DefaultJerkThreshold, settings.Detector.JerkThreshold)
	assert.Equal(t, detector.DefaultMaxAbsAcceleration, settings.Detector.MaxAbsAcceleration)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSettings_MissingRowUsesDefaults(t *testing.T) {
	db, mock, repo := setupMockSettingsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("tenant-1", "launcher-02").
		WillReturnError(sql.ErrNoRows)

	settings, err := repo.GetSettings(context.Background(), "tenant-1", "launcher-02")

	require.NoError(t, err)
	assert.True(t, settings.Enabled)
	assert.Equal(t, detector.DefaultConfig(), settings.Detector)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSettings_Success(t *testing.T) {
	db, mock, repo := setupMockSettingsDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO fall_monitor_settings`).
		WithArgs("tenant-1", "launcher-01", true, 0.5, 35.0, int64(300), 25.0, int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))

	settings := &models.MonitorSettings{
		TenantID: "tenant-1",
		DeviceID: "launcher-01",
		Enabled:  true,
		Detector: detector.Config{FallThreshold: 0.5},
	}
	err := repo.UpsertSettings(context.Background(), settings)

	require.NoError(t, err)
	assert.Equal(t, now, settings.UpdatedAt)
	assert.Equal(t, detector.DefaultImpactThreshold, settings.Detector.ImpactThreshold)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSettings_InvalidThresholds(t *testing.T) {
	db, _, repo := setupMockSettingsDB(t)
	defer db.Close()

	err := repo.UpsertSettings(context.Background(), &models.MonitorSettings{
		TenantID: "tenant-1",
		DeviceID: "launcher-01",
		Detector: detector.Config{FallThreshold: 40, ImpactThreshold: 35},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid detector thresholds")
}

func TestListEnabledDevices(t *testing.T) {
	db, mock, repo := setupMockSettingsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT device_id`).
		WithArgs("tenant-1").
		WillReturnRows(sqlmock.NewRows([]string{"device_id"}).AddRow("launcher-01").AddRow("launcher-03"))

	devices, err := repo.ListEnabledDevices(context.Background(), "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, []string{"launcher-01", "launcher-03"}, devices)
	require.NoError(t, mock.ExpectationsWereMet())
}
