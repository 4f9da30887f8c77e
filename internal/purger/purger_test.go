package purger

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeItems struct {
	unreadBefore, readBefore, archivedBefore time.Time

	idle, archived int64
	idleErr        error
}

func (f *fakeItems) MarkIdleForArchive(_ context.Context, unreadBefore, readBefore time.Time) (int64, error) {
	f.unreadBefore, f.readBefore = unreadBefore, readBefore
	return f.idle, f.idleErr
}

func (f *fakeItems) PurgeArchived(_ context.Context, archivedBefore time.Time) (int64, error) {
	f.archivedBefore = archivedBefore
	return f.archived, nil
}

type fakeMetrics struct {
	orphaned int64
	called   bool
}

func (f *fakeMetrics) PurgeOrphaned(context.Context) (int64, error) {
	f.called = true
	return f.orphaned, nil
}

var now = time.Date(2024, 3, 10, 3, 15, 0, 0, time.UTC)

func TestRun_Cutoffs(t *testing.T) {
	items := &fakeItems{idle: 4, archived: 9}
	metrics := &fakeMetrics{orphaned: 2}

	p := New(Config{
		Items:        items,
		Metrics:      metrics,
		MaxPostAge:   60 * 24 * time.Hour,
		MaxUnreadAge: 14 * 24 * time.Hour,
		Now:          func() time.Time { return now },
	})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report != (Report{MarkedIdle: 4, PurgedArchived: 9, PurgedOrphaned: 2}) {
		t.Errorf("unexpected report: %+v", report)
	}
	if want := now.Add(-14 * 24 * time.Hour); !items.unreadBefore.Equal(want) {
		t.Errorf("unread cutoff = %v, want %v", items.unreadBefore, want)
	}
	if want := now.Add(-DefaultMaxReadAge); !items.readBefore.Equal(want) {
		t.Errorf("read cutoff = %v, want %v", items.readBefore, want)
	}
	if want := now.Add(-60 * 24 * time.Hour); !items.archivedBefore.Equal(want) {
		t.Errorf("archive cutoff = %v, want %v", items.archivedBefore, want)
	}
}

func TestRun_StepFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("db down")
	items := &fakeItems{idleErr: boom, archived: 1}
	metrics := &fakeMetrics{}

	p := New(Config{Items: items, Metrics: metrics})
	report, err := p.Run(context.Background())

	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped step error, got %v", err)
	}
	if report.PurgedArchived != 1 || !metrics.called {
		t.Errorf("remaining steps should run, got %+v", report)
	}
}

func TestRun_RecoversPanic(t *testing.T) {
	p := New(Config{Items: &fakeItems{}})

	if _, err := p.Run(context.Background()); err == nil {
		t.Error("expected panic to be converted to error")
	}
}
