// Package reminder sends push reminders for doses that are due and not yet
// taken, at most once per patient, medicament and expected instant.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/glucohealth/glucohealth/internal/domain/identity"
	"github.com/glucohealth/glucohealth/internal/domain/medicament"
	"github.com/glucohealth/glucohealth/internal/domain/schedule"
	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/internal/platform/notification"
	"github.com/glucohealth/glucohealth/internal/platform/recurrence"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

var ErrTickInProgress = errors.New("reminder tick already in progress")

type PatientLister interface {
	ListPatientsTx(ctx context.Context, q db.Querier, p pagination.Params) (pagination.Page[*identity.Patient], error)
}

type ScheduleBuilder interface {
	BuildScheduleTx(ctx context.Context, q db.Querier, patientID uuid.UUID, day time.Time) ([]schedule.MedicamentSchedule, error)
	Location() *time.Location
}

type MedicamentReader interface {
	GetMedicamentTx(ctx context.Context, q db.Querier, id uuid.UUID) (*medicament.Medicament, error)
}

type Config struct {
	PageSize    int
	Concurrency int
}

// TickReport summarises one tick.
type TickReport struct {
	PatientsScanned int `json:"patients_scanned"`
	Due             int `json:"due"`
	Sent            int `json:"sent"`
	AlreadyNotified int `json:"already_notified"`
	Failed          int `json:"failed"`
}

type dueDose struct {
	medicamentID uuid.UUID
	expectedAt   time.Time
	name         string
	dose         string
}

type counters struct {
	sent, already, failed atomic.Int64
}

type Engine struct {
	tx          db.Transactor
	patients    PatientLister
	schedules   ScheduleBuilder
	medicaments MedicamentReader
	markers     MarkerStore
	push        notification.PushSender
	templates   *notification.TemplateEngine
	logger      zerolog.Logger
	cfg         Config
	now         func() time.Time

	running sync.Mutex
}

func NewEngine(
	tx db.Transactor,
	patients PatientLister,
	schedules ScheduleBuilder,
	medicaments MedicamentReader,
	markers MarkerStore,
	push notification.PushSender,
	templates *notification.TemplateEngine,
	logger zerolog.Logger,
	cfg Config,
) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Engine{
		tx:          tx,
		patients:    patients,
		schedules:   schedules,
		medicaments: medicaments,
		markers:     markers,
		push:        push,
		templates:   templates,
		logger:      logger.With().Str("component", "reminder").Logger(),
		cfg:         cfg,
		now:         time.Now,
	}
}

// Tick finds every due dose and sends its reminder unless a marker shows it
// was already sent. Per-dose failures are logged and counted, never returned.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	if !e.running.TryLock() {
		return TickReport{}, ErrTickInProgress
	}
	defer e.running.Unlock()

	start := e.now()
	var report TickReport
	due, scanned, err := e.collectDue(ctx, start)
	report.PatientsScanned = scanned
	if err != nil {
		return report, fmt.Errorf("collect due reminders: %w", err)
	}

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for patientID, doses := range due {
		report.Due += len(doses)
		patientID, doses := patientID, doses
		g.Go(func() error {
			e.notifyPatient(gctx, patientID, doses, &c)
			return nil
		})
	}
	_ = g.Wait()

	report.Sent = int(c.sent.Load())
	report.AlreadyNotified = int(c.already.Load())
	report.Failed = int(c.failed.Load())

	e.logger.Info().
		Int("patients_scanned", report.PatientsScanned).
		Int("due", report.Due).
		Int("sent", report.Sent).
		Int("already_notified", report.AlreadyNotified).
		Int("failed", report.Failed).
		Dur("elapsed", e.now().Sub(start)).
		Msg("reminder tick finished")
	return report, nil
}

// collectDue reads every patient's schedule from one snapshot.
func (e *Engine) collectDue(ctx context.Context, now time.Time) (map[uuid.UUID][]dueDose, int, error) {
	due := make(map[uuid.UUID][]dueDose)
	scanned := 0
	err := e.tx.InTx(ctx, db.Snapshot, func(q db.Querier) error {
		names := make(map[uuid.UUID]string)
		p := pagination.NewParams(1, e.cfg.PageSize)
		for {
			page, err := e.patients.ListPatientsTx(ctx, q, p)
			if err != nil {
				return err
			}
			for _, patient := range page.Items {
				scanned++
				doses, err := e.dueFor(ctx, q, patient.ID, now, names)
				if err != nil {
					return err
				}
				if len(doses) > 0 {
					due[patient.ID] = doses
				}
			}
			if !page.HasMore() {
				return nil
			}
			p = p.Next()
		}
	})
	return due, scanned, err
}

// scanDays lists the days whose doses can still be inside the grace window
// at now: today, plus yesterday during the first GraceWindow after midnight.
func (e *Engine) scanDays(now time.Time) []time.Time {
	loc := e.schedules.Location()
	today, _ := schedule.DayBounds(now, loc)
	earliest, _ := schedule.DayBounds(now.Add(-schedule.GraceWindow), loc)
	if earliest.Equal(today) {
		return []time.Time{today}
	}
	return []time.Time{earliest, today}
}

func (e *Engine) dueFor(ctx context.Context, q db.Querier, patientID uuid.UUID, now time.Time, names map[uuid.UUID]string) ([]dueDose, error) {
	var meds []schedule.MedicamentSchedule
	for _, day := range e.scanDays(now) {
		daily, err := e.schedules.BuildScheduleTx(ctx, q, patientID, day)
		switch {
		case errors.Is(err, schedule.ErrPatientNotFound):
			return nil, nil
		case errors.Is(err, recurrence.ErrInvalidRecurrenceExpression):
			e.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("skipping patient with an unreadable taking schedule")
			return nil, nil
		case err != nil:
			return nil, err
		}
		meds = append(meds, daily...)
	}

	var out []dueDose
	for _, ms := range meds {
		for _, entry := range ms.Schedule {
			if entry.Taken() || !schedule.WithinGraceWindow(entry.ExpectedAt, now) {
				continue
			}
			name, ok := names[ms.MedicamentID]
			if !ok {
				m, err := e.medicaments.GetMedicamentTx(ctx, q, ms.MedicamentID)
				if err != nil {
					return nil, fmt.Errorf("medicament %s: %w", ms.MedicamentID, err)
				}
				name = m.DisplayName()
				names[ms.MedicamentID] = name
			}
			out = append(out, dueDose{medicamentID: ms.MedicamentID, expectedAt: entry.ExpectedAt, name: name, dose: ms.Dose})
		}
	}
	return out, nil
}

func (e *Engine) notifyPatient(ctx context.Context, patientID uuid.UUID, doses []dueDose, c *counters) {
	log := e.logger.With().Str("patient_id", patientID.String()).Logger()

	markers, err := e.markers.ListMarkers(ctx, patientID)
	if err != nil {
		log.Error().Err(err).Int("doses", len(doses)).Msg("cannot read reminder markers, retrying next tick")
		c.failed.Add(int64(len(doses)))
		return
	}
	sent := make(map[markerKey]bool, len(markers))
	for _, m := range markers {
		sent[keyOf(m.MedicamentID, m.ExpectedAt)] = true
	}

	for _, d := range doses {
		if sent[keyOf(d.medicamentID, d.expectedAt)] {
			c.already.Add(1)
			continue
		}
		dlog := log.With().Str("medicament_id", d.medicamentID.String()).Time("expected_at", d.expectedAt).Logger()

		msg, err := e.templates.RenderPush(notification.TemplateMedicationReminder, patientID.String(), map[string]string{
			"medicament": d.name,
			"dose":       d.dose,
		})
		if err != nil {
			dlog.Error().Err(err).Msg("cannot render reminder")
			c.failed.Add(1)
			continue
		}
		if err := e.push.SendPush(ctx, msg); err != nil {
			dlog.Error().Err(err).Msg("reminder dispatch failed")
			c.failed.Add(1)
			continue
		}
		c.sent.Add(1)

		_, err = e.markers.AppendMarker(ctx, Marker{
			PatientID:    patientID,
			MedicamentID: d.medicamentID,
			ExpectedAt:   d.expectedAt,
			NotifiedAt:   e.now(),
		})
		if err != nil {
			dlog.Warn().Err(err).Msg("reminder sent but marker not stored, next tick may send a duplicate")
		}
	}
}

// Prune deletes markers whose expected instant is older than retention.
func (e *Engine) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := e.now().Add(-retention)
	n, err := e.markers.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	e.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("reminder markers pruned")
	return n, nil
}

// Markers lists the reminders already sent to a patient.
func (e *Engine) Markers(ctx context.Context, patientID uuid.UUID) ([]Marker, error) {
	return e.markers.ListMarkers(ctx, patientID)
}
