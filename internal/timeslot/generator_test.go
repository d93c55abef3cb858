package timeslot

import (
	"testing"
	"time"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGeneratorConcreteScenario(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.Local)
	g, err := newGenerator(Config{
		MinDelay:   2 * time.Second,
		MaxDelay:   2 * time.Second,
		BatchSize:  3,
		BatchDelay: 10 * time.Second,
		StartDate:  now,
		StartTime:  "10:00:00",
		EndTime:    "18:00:00",
	}, fixedNow(now))
	if err != nil {
		t.Fatalf("newGenerator failed: %v", err)
	}

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	wantOffsets := []time.Duration{0, 2 * time.Second, 4 * time.Second, 14 * time.Second}

	for i, want := range wantOffsets {
		got := g.Next()
		if !got.Equal(base.Add(want)) {
			t.Errorf("slot %d = %v, want %v", i, got, base.Add(want))
		}
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.Local)
	g, err := newGenerator(Config{
		MinDelay:   1 * time.Second,
		MaxDelay:   30 * time.Second,
		BatchSize:  5,
		BatchDelay: 2 * time.Minute,
		StartTime:  "09:00:00",
		EndTime:    "12:30:00",
	}, fixedNow(now))
	if err != nil {
		t.Fatalf("newGenerator failed: %v", err)
	}

	prev := g.Next()
	for i := 0; i < 500; i++ {
		cur := g.Next()
		if cur.Before(prev) {
			t.Fatalf("slot %d decreased: %v after %v", i+1, cur, prev)
		}
		prev = cur
	}
}

func TestGeneratorWindowContainment(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 59, 0, 0, time.Local)
	g, err := newGenerator(Config{
		MinDelay:  5 * time.Second,
		MaxDelay:  10 * time.Second,
		StartTime: "10:00:00",
		EndTime:   "10:00:30",
	}, fixedNow(now))
	if err != nil {
		t.Fatalf("newGenerator failed: %v", err)
	}

	const startSec = 10 * 3600
	const endSec = 10*3600 + 30

	for i := 0; i < 200; i++ {
		got := g.Next()
		sec := got.Hour()*3600 + got.Minute()*60 + got.Second()
		if sec < startSec || sec > endSec {
			t.Fatalf("slot %d at %v outside window", i, got)
		}
	}
}

func TestGeneratorBatchSpacing(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.Local)
	const batchSize = 4
	batchDelay := 5 * time.Minute

	g, err := newGenerator(Config{
		MinDelay:   2 * time.Second,
		MaxDelay:   8 * time.Second,
		BatchSize:  batchSize,
		BatchDelay: batchDelay,
		StartTime:  "08:00:00",
		EndTime:    "23:00:00",
	}, fixedNow(now))
	if err != nil {
		t.Fatalf("newGenerator failed: %v", err)
	}

	slots := make([]time.Time, 40)
	for i := range slots {
		slots[i] = g.Next()
	}

	for k := 1; k*batchSize < len(slots); k++ {
		gap := slots[k*batchSize].Sub(slots[k*batchSize-1])
		if gap < batchDelay {
			t.Errorf("batch %d gap %v, want at least %v", k, gap, batchDelay)
		}
	}
}

func TestGeneratorAnchorNeverInPast(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.Local)
	g, err := newGenerator(Config{
		MinDelay:  2 * time.Second,
		MaxDelay:  4 * time.Second,
		StartTime: "10:00:00",
		EndTime:   "18:00:00",
	}, fixedNow(now))
	if err != nil {
		t.Fatalf("newGenerator failed: %v", err)
	}

	if first := g.Next(); first.Before(now) {
		t.Errorf("first slot %v is before now %v", first, now)
	}
}

func TestGeneratorRollsPastWindowEnd(t *testing.T) {
	// 锚点已过当日窗口，应滚动到次日窗口头部
	now := time.Date(2026, 3, 2, 19, 0, 0, 0, time.Local)
	g, err := newGenerator(Config{
		MinDelay:  2 * time.Second,
		MaxDelay:  2 * time.Second,
		StartTime: "10:00:00",
		EndTime:   "18:00:00",
	}, fixedNow(now))
	if err != nil {
		t.Fatalf("newGenerator failed: %v", err)
	}

	want := time.Date(2026, 3, 3, 10, 0, 0, 0, time.Local)
	if got := g.Next(); !got.Equal(want) {
		t.Errorf("first slot = %v, want %v", got, want)
	}
}

func TestGeneratorRejectsInvalidWindow(t *testing.T) {
	_, err := newGenerator(Config{
		StartTime: "18:00:00",
		EndTime:   "10:00:00",
	}, fixedNow(time.Now()))
	if err != ErrWindowInvalid {
		t.Fatalf("err = %v, want ErrWindowInvalid", err)
	}
}
