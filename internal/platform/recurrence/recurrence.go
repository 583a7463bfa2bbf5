// Package recurrence evaluates cron-style taking schedules over bounded
// time ranges.
package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrInvalidRecurrenceExpression = errors.New("invalid recurrence expression")

// Five standard fields with an optional leading seconds field, plus
// descriptors such as @daily.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Expression is a parsed recurrence rule.
type Expression struct {
	raw   string
	sched cron.Schedule
}

// Parse validates and compiles expr.
func Parse(expr string) (*Expression, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidRecurrenceExpression)
	}
	// @every is relative to when a job starts, not to the calendar.
	if strings.HasPrefix(trimmed, "@every") {
		return nil, fmt.Errorf("%w: %q is not calendar anchored", ErrInvalidRecurrenceExpression, expr)
	}
	sched, err := parser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRecurrenceExpression, expr, err)
	}
	return &Expression{raw: trimmed, sched: sched}, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(expr string) *Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// Validate reports whether expr can be parsed.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

func (e *Expression) String() string {
	return e.raw
}

// OccurrencesInRange returns every activation in [start, end], ascending.
// Activations are computed in start's location.
func (e *Expression) OccurrencesInRange(start, end time.Time) []time.Time {
	if end.Before(start) {
		return nil
	}
	var out []time.Time
	// Next is strictly after its argument, so step back to include start.
	for t := e.sched.Next(start.Add(-time.Nanosecond)); !t.IsZero() && !t.After(end); t = e.sched.Next(t) {
		out = append(out, t)
	}
	return out
}

// OccurrencesInRange parses expr and evaluates it over [start, end].
func OccurrencesInRange(expr string, start, end time.Time) ([]time.Time, error) {
	e, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	return e.OccurrencesInRange(start, end), nil
}

// JobParser is the parser used to register scheduler jobs. It accepts the
// same syntax as Parse and also @every.
func JobParser() cron.ScheduleParser {
	return parser
}

// ValidateJobSpec reports whether spec can drive a scheduler job.
func ValidateJobSpec(spec string) error {
	if _, err := parser.Parse(strings.TrimSpace(spec)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidRecurrenceExpression, spec, err)
	}
	return nil
}
