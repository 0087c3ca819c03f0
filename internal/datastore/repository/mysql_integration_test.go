//go:build integration

package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gorm_mysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"

	"github.com/pulseboard/pulseboard/internal/datastore/entities"
	"github.com/pulseboard/pulseboard/internal/datastore/repository"
	"github.com/pulseboard/pulseboard/internal/testutil/containers"
)

// MySQL test container shared across all tests in this package.
var (
	mysqlContainer *containers.MySQLContainer
	testDB         *gorm.DB
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	mysqlContainer, err = containers.NewMySQLContainer(ctx, nil)
	if err != nil {
		panic("failed to create MySQL container: " + err.Error())
	}

	testDB, err = gorm.Open(gorm_mysql.Open(mysqlContainer.DSN()), &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to open gorm connection: " + err.Error())
	}

	if err := testDB.AutoMigrate(
		&entities.AlertRule{},
		&entities.AlertCondition{},
		&entities.AlertAction{},
		&entities.AlertHistory{},
		&entities.Feedback{},
		&entities.OptInRecord{},
	); err != nil {
		_ = mysqlContainer.Terminate(context.Background())
		panic("failed to migrate schema: " + err.Error())
	}

	code := m.Run()

	if err := mysqlContainer.Terminate(context.Background()); err != nil {
		panic("failed to terminate MySQL container: " + err.Error())
	}
	os.Exit(code)
}

// resetDatabase truncates all tables to ensure test isolation.
func resetDatabase(t *testing.T) {
	t.Helper()
	err := mysqlContainer.Reset(t.Context(), []string{
		"alert_history", "alert_conditions", "alert_actions",
		"alert_rules", "feedback", "optin_records",
	})
	require.NoError(t, err, "failed to reset database")
}

func TestMySQL_AlertRuleLifecycle(t *testing.T) {
	resetDatabase(t)
	repo := repository.NewAlertRuleRepository(testDB)
	ctx := t.Context()

	rule := &entities.AlertRule{
		TenantID:    "acme",
		Name:        "Negative feedback",
		Enabled:     true,
		Priority:    "high",
		CooldownMin: 30,
		Conditions: []entities.AlertCondition{
			{Type: "rating_threshold", Field: "overall_rating", Operator: "less_than", Value: "3"},
		},
		Actions: []entities.AlertAction{
			{Type: "email", Recipients: "ops@example.com"},
		},
	}
	require.NoError(t, repo.CreateRule(ctx, rule))
	require.NotZero(t, rule.ID)

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Negative feedback", got.Name)
	assert.Len(t, got.Conditions, 1)
	assert.Len(t, got.Actions, 1)

	require.NoError(t, repo.ToggleRule(ctx, rule.ID, false))
	got, err = repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, repo.DeleteRule(ctx, rule.ID))
	_, err = repo.GetRule(ctx, rule.ID)
	require.ErrorIs(t, err, repository.ErrAlertRuleNotFound)
}

func TestMySQL_HistoryRetention(t *testing.T) {
	resetDatabase(t)
	repo := repository.NewAlertRuleRepository(testDB)
	ctx := t.Context()

	rule := &entities.AlertRule{TenantID: "acme", Name: "HistRule", Enabled: true, Priority: "high", CooldownMin: 30}
	require.NoError(t, repo.CreateRule(ctx, rule))

	now := time.Now()
	for i := range 4 {
		require.NoError(t, repo.SaveHistory(ctx, &entities.AlertHistory{
			RuleID:   rule.ID,
			TenantID: "acme",
			FiredAt:  now.Add(time.Duration(-i*24) * time.Hour),
			Severity: "warning",
			Message:  "fired",
		}))
	}

	deleted, err := repo.DeleteHistoryBefore(ctx, now.Add(-36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, total, err := repo.ListHistory(ctx, repository.AlertHistoryFilter{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestMySQL_OptInUpsert(t *testing.T) {
	resetDatabase(t)
	repo := repository.NewOptInRepository(testDB)
	ctx := t.Context()

	now := time.Now()
	require.NoError(t, repo.Upsert(ctx, &entities.OptInRecord{
		PhoneNumber: "+15550001111",
		TenantID:    "acme",
		Status:      entities.OptInStatusOptedIn,
		Source:      "web",
		OptedInAt:   &now,
	}))

	// Second upsert on the same (phone, tenant) must update, not duplicate.
	require.NoError(t, repo.Upsert(ctx, &entities.OptInRecord{
		PhoneNumber: "+15550001111",
		TenantID:    "acme",
		Status:      entities.OptInStatusOptedOut,
		Source:      "sms_keyword",
		OptedOutAt:  &now,
	}))

	rec, err := repo.Get(ctx, "+15550001111", "acme")
	require.NoError(t, err)
	assert.Equal(t, entities.OptInStatusOptedOut, rec.Status)

	var count int64
	require.NoError(t, testDB.Model(&entities.OptInRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMySQL_FeedbackQueries(t *testing.T) {
	resetDatabase(t)
	repo := repository.NewFeedbackRepository(testDB)
	ctx := t.Context()

	for i := range 3 {
		require.NoError(t, repo.Create(ctx, &entities.Feedback{
			TenantID: "acme",
			Rating:   i + 1,
		}))
	}

	count, err := repo.CountSince(ctx, "acme", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	last, err := repo.LastCreatedAt(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.WithinDuration(t, time.Now(), *last, time.Minute)
}
