package service

import (
	"context"
	"testing"
	"time"

	"github.com/AnishVcode/senior-launcher/internal/detector"
	"github.com/AnishVcode/senior-launcher/internal/models"
	"github.com/AnishVcode/senior-launcher/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRestarter struct{ restarted []string }

func (f *fakeRestarter) Restart(deviceID string) { f.restarted = append(f.restarted, deviceID) }

func TestSettingsService_UpdateRestartsMonitor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	restarter := &fakeRestarter{}
	repo := repository.NewMonitorSettingsRepository(db, detector.DefaultConfig(), zap.NewNop())
	svc := NewSettingsService("tenant-1", repo, restarter, zap.NewNop())

	mock.ExpectQuery(`INSERT INTO fall_monitor_settings`).
		WithArgs("tenant-1", "launcher-01", true, 0.5, 35.0, int64(300), 25.0, int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	err = svc.UpdateSettings(context.Background(), &models.MonitorSettings{
		TenantID: "ignored",
		DeviceID: "launcher-01",
		Enabled:  true,
		Detector: detector.Config{FallThreshold: 0.5},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"launcher-01"}, restarter.restarted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsService_InvalidDoesNotRestart(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	restarter := &fakeRestarter{}
	repo := repository.NewMonitorSettingsRepository(db, detector.DefaultConfig(), zap.NewNop())
	svc := NewSettingsService("tenant-1", repo, restarter, zap.NewNop())

	err = svc.UpdateSettings(context.Background(), &models.MonitorSettings{
		DeviceID: "launcher-01",
		Detector: detector.Config{FallThreshold: 50},
	})

	require.Error(t, err)
	assert.Empty(t, restarter.restarted)
}

func TestSettingsService_RequiresTenant(t *testing.T) {
	svc := NewSettingsService("", nil, nil, zap.NewNop())

	_, err := svc.GetSettings(context.Background(), "launcher-01")
	assert.EqualError(t, err, "tenant_id is required")

	_, err = svc.ListEnabledDevices(context.Background())
	assert.EqualError(t, err, "tenant_id is required")
}
