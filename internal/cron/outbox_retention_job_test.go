package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

type fakeOutboxPruner struct {
	cutoff      time.Time
	minAttempts int
	calls       int
	err         error
}

func (f *fakeOutboxPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.calls++
	f.cutoff = cutoff
	f.minAttempts = minAttemptCount
	if f.err != nil {
		return 0, f.err
	}
	return 12, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func newRetentionJob(t *testing.T, repo *fakeOutboxPruner, days int, now time.Time) Job {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:        logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		DB:            passthroughTx{},
		Repository:    repo,
		RetentionDays: days,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	return job
}

func TestOutboxRetentionJobUsesConfiguredWindow(t *testing.T) {
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newRetentionJob(t, repo, 7, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-7 * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.cutoff)
	}
	if repo.minAttempts != outboxMinAttempts || repo.calls != 1 {
		t.Fatalf("unexpected call state %+v", repo)
	}
}

func TestOutboxRetentionJobDefaultsWindow(t *testing.T) {
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	repo := &fakeOutboxPruner{}
	job := newRetentionJob(t, repo, 0, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultOutboxRetentionDays * 24 * time.Hour); !repo.cutoff.Equal(want) {
		t.Fatalf("expected default cutoff %s, got %s", want, repo.cutoff)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &fakeOutboxPruner{err: errors.New("boom")}
	job := newRetentionJob(t, repo, 30, time.Now())
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
