package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"tg_antispam_bot/internal/config"
)

type fakeMaintainer struct {
	flushCalls int
	flushErr   error
	pruneCalls int
	horizons   []time.Duration
	pruned     int
}

func (f *fakeMaintainer) Flush() error {
	f.flushCalls++
	return f.flushErr
}

func (f *fakeMaintainer) PruneStale(horizon time.Duration, now time.Time) int {
	f.pruneCalls++
	f.horizons = append(f.horizons, horizon)
	return f.pruned
}

func newTestScheduler(t *testing.T, maintainer *fakeMaintainer, cfg config.Config) (*Scheduler, *logtest.Hook) {
	t.Helper()

	hookLogger, hook := logtest.NewNullLogger()

	return NewScheduler(maintainer, cfg, logrus.NewEntry(hookLogger)), hook
}

func TestStartAndStop(t *testing.T) {
	maintainer := &fakeMaintainer{}
	scheduler, _ := newTestScheduler(t, maintainer, config.Config{
		FlushInterval: time.Minute,
		JoinRetention: 720 * time.Hour,
	})

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if got := len(scheduler.cron.Entries()); got != 2 {
		t.Fatalf("expected 2 scheduled tasks, got %d", got)
	}

	scheduler.Stop()
}

func TestPruneSweepDisabledWithoutRetention(t *testing.T) {
	maintainer := &fakeMaintainer{}
	scheduler, _ := newTestScheduler(t, maintainer, config.Config{
		FlushInterval: time.Minute,
	})

	if err := scheduler.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	defer scheduler.Stop()

	if got := len(scheduler.cron.Entries()); got != 1 {
		t.Fatalf("expected only the flush task, got %d", got)
	}
}

func TestFlushDelegatesToState(t *testing.T) {
	maintainer := &fakeMaintainer{}
	scheduler, hook := newTestScheduler(t, maintainer, config.Config{
		FlushInterval: time.Minute,
	})

	scheduler.flush()
	if maintainer.flushCalls != 1 {
		t.Fatalf("expected one flush call, got %d", maintainer.flushCalls)
	}
	if len(hook.Entries) != 0 {
		t.Fatalf("successful flush must not log, got %d entries", len(hook.Entries))
	}

	maintainer.flushErr = errors.New("disk full")
	scheduler.flush()
	if maintainer.flushCalls != 2 {
		t.Fatalf("expected two flush calls, got %d", maintainer.flushCalls)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.ErrorLevel {
		t.Fatalf("expected flush error logged, got %+v", entry)
	}
	if entry.Data["event"] != "flush_error" {
		t.Fatalf("unexpected event field: %v", entry.Data["event"])
	}
}

func TestPrunePassesConfiguredHorizon(t *testing.T) {
	maintainer := &fakeMaintainer{pruned: 3}
	scheduler, hook := newTestScheduler(t, maintainer, config.Config{
		FlushInterval: time.Minute,
		JoinRetention: 48 * time.Hour,
	})

	scheduler.prune()

	if maintainer.pruneCalls != 1 {
		t.Fatalf("expected one prune call, got %d", maintainer.pruneCalls)
	}
	if maintainer.horizons[0] != 48*time.Hour {
		t.Fatalf("expected 48h horizon, got %v", maintainer.horizons[0])
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Data["event"] != "prune_sweep" {
		t.Fatalf("expected prune sweep logged, got %+v", entry)
	}
	if entry.Data["pruned"] != 3 {
		t.Fatalf("expected pruned count 3, got %v", entry.Data["pruned"])
	}
}

func TestPruneWithNothingToRemoveIsSilent(t *testing.T) {
	maintainer := &fakeMaintainer{}
	scheduler, hook := newTestScheduler(t, maintainer, config.Config{
		FlushInterval: time.Minute,
		JoinRetention: 48 * time.Hour,
	})

	scheduler.prune()

	if len(hook.Entries) != 0 {
		t.Fatalf("expected no log entries, got %d", len(hook.Entries))
	}
}

func TestStartOnUninitializedSchedulerFails(t *testing.T) {
	var scheduler *Scheduler
	if err := scheduler.Start(); err == nil {
		t.Fatalf("expected error from nil scheduler")
	}

	scheduler.Stop()
}
