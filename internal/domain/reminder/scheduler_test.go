package reminder

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/glucohealth/glucohealth/internal/platform/notification"
	"github.com/glucohealth/glucohealth/internal/platform/recurrence"
)

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	l := cronLogger{l: zerolog.New(&buf).Level(zerolog.DebugLevel)}

	l.Info("schedule", "entry", 1)
	l.Error(errors.New("boom"), "panic", "job", "tick")

	out := buf.String()
	for _, want := range []string{`"level":"debug"`, `"entry":1`, `"level":"error"`, `"error":"boom"`, `"job":"tick"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestScheduler_RejectsInvalidSpecs(t *testing.T) {
	e := newTestEngine(newWorld(), NewMemoryMarkerStore(), &notification.MockPushSender{}, &testClock{t: at(8, 0)})
	s := NewScheduler(e, time.UTC, zerolog.Nop())

	if err := s.AddTick("every minute"); !errors.Is(err, recurrence.ErrInvalidRecurrenceExpression) {
		t.Errorf("expected invalid tick spec error, got %v", err)
	}
	if err := s.AddPrune("", time.Hour); !errors.Is(err, recurrence.ErrInvalidRecurrenceExpression) {
		t.Errorf("expected invalid prune spec error, got %v", err)
	}
	if s.Jobs() != 0 {
		t.Errorf("expected no jobs registered, got %d", s.Jobs())
	}
}

func TestScheduler_StartStop(t *testing.T) {
	e := newTestEngine(newWorld(), NewMemoryMarkerStore(), &notification.MockPushSender{}, &testClock{t: at(8, 0)})
	s := NewScheduler(e, time.UTC, zerolog.Nop())

	if err := s.AddTick("* * * * *"); err != nil {
		t.Fatalf("AddTick: %v", err)
	}
	if err := s.AddPrune("0 3 * * *", 30*24*time.Hour); err != nil {
		t.Fatalf("AddPrune: %v", err)
	}
	if s.Jobs() != 2 {
		t.Fatalf("expected 2 jobs, got %d", s.Jobs())
	}

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("expected clean stop, got %v", err)
	}
}
