package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAddRejectsInvalid(t *testing.T) {
	s := New()
	noop := func(context.Context) (string, error) { return "", nil }
	if err := s.Add("", "0 3 * * *", noop); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.Add("bad", "not a cron", noop); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if err := s.Add("backup", "CRON_TZ=America/Recife 0 3 * * *", noop); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add("backup", "0 3 * * *", noop); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestTriggerRecordsHistory(t *testing.T) {
	s := New(WithMaxRuns(2))
	calls := 0
	err := s.Add("backupFirestoreDaily", "0 3 * * *", func(context.Context) (string, error) {
		calls++
		if calls == 2 {
			return "", errors.New("export rejected")
		}
		return "gs://b/firestore-backups/2026-10-19", nil
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = s.Trigger(ctx, "backupFirestoreDaily")
	}

	runs, err := s.History("backupFirestoreDaily", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(runs))
	}
	if runs[0].Status != "completed" || runs[1].Status != "failed" || runs[1].Error != "export rejected" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].Trigger != "manual" {
		t.Fatalf("unexpected trigger %q", runs[0].Trigger)
	}

	job, ok := s.Get("backupFirestoreDaily")
	if !ok {
		t.Fatal("job not found")
	}
	if job.RunCount != 3 || job.LastErr != "" {
		t.Fatalf("unexpected job state: %+v", job)
	}
}

func TestScheduledRunSkipsDisabled(t *testing.T) {
	s := New()
	calls := 0
	_ = s.Add("job", "0 3 * * *", func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})
	if err := s.SetEnabled("job", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	s.executeJob("job")
	if calls != 0 {
		t.Fatalf("disabled job ran %d times", calls)
	}
	if _, err := s.Trigger(context.Background(), "job"); err != nil || calls != 1 {
		t.Fatalf("manual trigger should run disabled jobs: calls=%d err=%v", calls, err)
	}
}

func TestListAndRemove(t *testing.T) {
	s := New()
	noop := func(context.Context) (string, error) { return "", nil }
	_ = s.Add("b", "@daily", noop)
	_ = s.Add("a", "@hourly", noop)
	jobs := s.List()
	if len(jobs) != 2 || jobs[0].Name != "a" || jobs[1].Name != "b" {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
	if err := s.Remove("a"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := s.Remove("a"); err == nil {
		t.Fatal("expected error removing unknown job")
	}
	if _, err := s.History("a", 1); err == nil {
		t.Fatal("expected error for removed job")
	}
}

func TestStartStop(t *testing.T) {
	s := New()
	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
