package cron

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/rifa-backend/pkg/db"
	"github.com/angelmondragon/rifa-backend/pkg/db/models"
	"github.com/angelmondragon/rifa-backend/pkg/enums"
	"github.com/angelmondragon/rifa-backend/pkg/outbox"
)

func TestOutboxRetentionJobDeletesOnlyOldPublishedRows(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "cron.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.OutboxEvent{}))

	now := time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC)
	old := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)
	rows := []models.OutboxEvent{
		{PublishedAt: &old},
		{PublishedAt: &recent},
		{AttemptCount: 10},
	}
	for i := range rows {
		rows[i].EventType = enums.EventOrderPaid
		rows[i].AggregateType = enums.AggregateOrder
		rows[i].AggregateID = uuid.New()
		rows[i].Payload = json.RawMessage(`{}`)
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         dbpkg.NewFromConn(db),
		Repository: outbox.NewRepository(db),
	})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	var remaining []models.OutboxEvent
	require.NoError(t, db.Order("created_at ASC").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	ids := []uuid.UUID{remaining[0].ID, remaining[1].ID}
	assert.Contains(t, ids, rows[1].ID)
	assert.Contains(t, ids, rows[2].ID)
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	purger := &fakePurger{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        testLogger(),
		DB:            passthroughTx{},
		Repository:    purger,
		RetentionDays: 7,
	})
	require.NoError(t, err)
	now := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-7*24*time.Hour), purger.cutoff)
}

func TestOutboxRetentionJobWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: &fakePurger{err: boom},
	})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Run(context.Background()), boom)
}

func TestNewOutboxRetentionJobRequiresDeps(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), DB: passthroughTx{}})
	assert.Error(t, err)
}

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) DeletePublishedBefore(_ *gorm.DB, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 0, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
