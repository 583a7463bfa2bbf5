package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glucohealth/glucohealth/internal/domain/identity"
	"github.com/glucohealth/glucohealth/internal/domain/intake"
	"github.com/glucohealth/glucohealth/internal/domain/medicament"
	"github.com/glucohealth/glucohealth/internal/domain/schedule"
	"github.com/glucohealth/glucohealth/internal/domain/treatment"
	"github.com/glucohealth/glucohealth/internal/platform/db"
	"github.com/glucohealth/glucohealth/internal/platform/notification"
	"github.com/glucohealth/glucohealth/pkg/pagination"
)

// -- Fakes --

type world struct {
	patients    []*identity.Patient
	treatments  map[uuid.UUID]*treatment.Treatment
	takings     []*intake.Taking
	medicaments map[uuid.UUID]*medicament.Medicament
	listErr     error
	pagesRead   int
}

func newWorld() *world {
	return &world{
		treatments:  make(map[uuid.UUID]*treatment.Treatment),
		medicaments: make(map[uuid.UUID]*medicament.Medicament),
	}
}

func (w *world) ListPatientsTx(_ context.Context, _ db.Querier, p pagination.Params) (pagination.Page[*identity.Patient], error) {
	if w.listErr != nil {
		return pagination.Page[*identity.Patient]{}, w.listErr
	}
	w.pagesRead++
	start := p.Offset()
	if start > len(w.patients) {
		start = len(w.patients)
	}
	end := start + p.Limit()
	if end > len(w.patients) {
		end = len(w.patients)
	}
	return pagination.NewPage(w.patients[start:end], len(w.patients), p), nil
}

func (w *world) GetPatientTx(_ context.Context, _ db.Querier, id uuid.UUID) (*identity.Patient, error) {
	for _, p := range w.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, identity.ErrPatientNotFound
}

func (w *world) GetPatientTreatmentTx(_ context.Context, _ db.Querier, patientID uuid.UUID) (*treatment.Treatment, error) {
	if t, ok := w.treatments[patientID]; ok {
		return t, nil
	}
	return nil, treatment.ErrTreatmentNotFound
}

func (w *world) ListByPatientAndMedicamentTx(_ context.Context, _ db.Querier, patientID, medicamentID uuid.UUID) ([]*intake.Taking, error) {
	var out []*intake.Taking
	for _, t := range w.takings {
		if t.PatientID == patientID && t.MedicamentID == medicamentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (w *world) GetMedicamentTx(_ context.Context, _ db.Querier, id uuid.UUID) (*medicament.Medicament, error) {
	if m, ok := w.medicaments[id]; ok {
		return m, nil
	}
	return nil, medicament.ErrMedicamentNotFound
}

func (w *world) addMedicament(name string) uuid.UUID {
	id := uuid.New()
	w.medicaments[id] = &medicament.Medicament{ID: id, GenericName: name}
	return id
}

// addPatient gives a new patient a treatment taking each medicament daily
// at rule, valid from 2024-01-01.
func (w *world) addPatient(rule string, meds ...uuid.UUID) uuid.UUID {
	id := uuid.New()
	w.patients = append(w.patients, &identity.Patient{User: identity.User{ID: id, Email: id.String() + "@example.com"}})
	tr := &treatment.Treatment{ID: uuid.New(), PatientID: id}
	for _, m := range meds {
		tr.Medicaments = append(tr.Medicaments, treatment.Medicament{
			MedicamentID:    m,
			Dose:            "1 tableta",
			TakingSchedules: []string{rule},
			ValidityStart:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
	w.treatments[id] = tr
	return id
}

type flakyMarkers struct {
	*MemoryMarkerStore
	listErr   error
	appendErr error
}

func (f *flakyMarkers) ListMarkers(ctx context.Context, patientID uuid.UUID) ([]Marker, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryMarkerStore.ListMarkers(ctx, patientID)
}

func (f *flakyMarkers) AppendMarker(ctx context.Context, m Marker) (bool, error) {
	if f.appendErr != nil {
		return false, f.appendErr
	}
	return f.MemoryMarkerStore.AppendMarker(ctx, m)
}

type testClock struct {
	t time.Time
}

func newTestEngine(w *world, markers MarkerStore, push notification.PushSender, clock *testClock) *Engine {
	sched := schedule.NewService(db.NopTransactor{}, w, w, w, time.UTC)
	e := NewEngine(db.NopTransactor{}, w, sched, w, markers, push, notification.NewTemplateEngine(),
		zerolog.Nop(), Config{PageSize: 2, Concurrency: 2})
	e.now = func() time.Time { return clock.t }
	return e
}

func at(hh, mm int) time.Time {
	return time.Date(2024, 1, 1, hh, mm, 0, 0, time.UTC)
}

// -- Tests --

func TestTick_SendsOnceAcrossTicks(t *testing.T) {
	w := newWorld()
	med := w.addMedicament("Metformina")
	patient := w.addPatient("0 8 * * *", med)
	markers := NewMemoryMarkerStore()
	push := &notification.MockPushSender{}
	clock := &testClock{t: at(8, 10)}
	e := newTestEngine(w, markers, push, clock)

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 || report.Due != 1 || report.PatientsScanned != 1 {
		t.Fatalf("unexpected first report: %+v", report)
	}

	clock.t = at(8, 11)
	report, err = e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 0 || report.AlreadyNotified != 1 {
		t.Errorf("expected the second tick to send nothing, got %+v", report)
	}

	calls := push.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 push, got %d", len(calls))
	}
	if calls[0].ExternalID != patient.String() {
		t.Errorf("expected push to %s, got %s", patient, calls[0].ExternalID)
	}
	if !strings.Contains(calls[0].Title, "Metformina") || !strings.Contains(calls[0].Body, "1 tableta") {
		t.Errorf("unexpected push text: %+v", calls[0])
	}

	ms, _ := markers.ListMarkers(context.Background(), patient)
	if len(ms) != 1 || !ms[0].ExpectedAt.Equal(at(8, 0)) || !ms[0].NotifiedAt.Equal(at(8, 10)) {
		t.Errorf("unexpected markers: %+v", ms)
	}
}

func TestTick_ManyTicksOneDispatch(t *testing.T) {
	w := newWorld()
	w.addPatient("0 8 * * *", w.addMedicament("Insulina"))
	push := &notification.MockPushSender{}
	clock := &testClock{}
	e := newTestEngine(w, NewMemoryMarkerStore(), push, clock)

	for m := 0; m <= 30; m++ {
		clock.t = at(8, m)
		if _, err := e.Tick(context.Background()); err != nil {
			t.Fatalf("tick at 08:%02d: %v", m, err)
		}
	}
	if n := len(push.Calls()); n != 1 {
		t.Errorf("expected 1 dispatch over the whole window, got %d", n)
	}
}

func TestTick_OutsideWindow(t *testing.T) {
	for _, tc := range []struct {
		name string
		now  time.Time
	}{
		{"before expected", at(7, 59)},
		{"after grace window", at(8, 31)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := newWorld()
			w.addPatient("0 8 * * *", w.addMedicament("Insulina"))
			push := &notification.MockPushSender{}
			e := newTestEngine(w, NewMemoryMarkerStore(), push, &testClock{t: tc.now})

			report, err := e.Tick(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Due != 0 || len(push.Calls()) != 0 {
				t.Errorf("expected nothing due, got %+v", report)
			}
		})
	}
}

func TestTick_WindowEdgesAreDue(t *testing.T) {
	for _, now := range []time.Time{at(8, 0), at(8, 30)} {
		w := newWorld()
		w.addPatient("0 8 * * *", w.addMedicament("Insulina"))
		push := &notification.MockPushSender{}
		e := newTestEngine(w, NewMemoryMarkerStore(), push, &testClock{t: now})

		if _, err := e.Tick(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(push.Calls()) != 1 {
			t.Errorf("expected a push at %s", now.Format(time.Kitchen))
		}
	}
}

func TestTick_TakenDoseNotReminded(t *testing.T) {
	w := newWorld()
	med := w.addMedicament("Insulina")
	patient := w.addPatient("0 8 * * *", med)
	w.takings = append(w.takings, &intake.Taking{ID: uuid.New(), PatientID: patient, MedicamentID: med, TakenAt: at(8, 5)})
	push := &notification.MockPushSender{}
	e := newTestEngine(w, NewMemoryMarkerStore(), push, &testClock{t: at(8, 10)})

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Due != 0 || len(push.Calls()) != 0 {
		t.Errorf("expected no reminder for a taken dose, got %+v", report)
	}
}

func TestTick_DispatchFailureRetriedNextTick(t *testing.T) {
	w := newWorld()
	med := w.addMedicament("Insulina")
	failing := w.addPatient("0 8 * * *", med)
	healthy := w.addPatient("0 8 * * *", med)
	markers := NewMemoryMarkerStore()
	push := &notification.MockPushSender{FailFor: map[string]bool{failing.String(): true}}
	clock := &testClock{t: at(8, 10)}
	e := newTestEngine(w, markers, push, clock)

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 || report.Failed != 1 {
		t.Fatalf("expected one sent and one failed, got %+v", report)
	}
	if ms, _ := markers.ListMarkers(context.Background(), failing); len(ms) != 0 {
		t.Fatalf("expected no marker after a failed dispatch, got %+v", ms)
	}

	push.FailFor = nil
	clock.t = at(8, 11)
	report, err = e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 || report.AlreadyNotified != 1 {
		t.Errorf("expected the failed reminder to be retried, got %+v", report)
	}
	if ms, _ := markers.ListMarkers(context.Background(), healthy); len(ms) != 1 {
		t.Errorf("expected healthy patient's marker, got %+v", ms)
	}
}

func TestTick_MarkerReadFailureSkipsPatient(t *testing.T) {
	w := newWorld()
	w.addPatient("0 8 * * *", w.addMedicament("Insulina"))
	markers := &flakyMarkers{MemoryMarkerStore: NewMemoryMarkerStore(), listErr: ErrMarkerStoreUnavailable}
	push := &notification.MockPushSender{}
	e := newTestEngine(w, markers, push, &testClock{t: at(8, 10)})

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Failed != 1 || len(push.Calls()) != 0 {
		t.Errorf("expected the dose to fail without a dispatch, got %+v", report)
	}
}

func TestTick_MarkerWriteFailureStillCountsSent(t *testing.T) {
	w := newWorld()
	w.addPatient("0 8 * * *", w.addMedicament("Insulina"))
	markers := &flakyMarkers{MemoryMarkerStore: NewMemoryMarkerStore(), appendErr: ErrMarkerStoreUnavailable}
	push := &notification.MockPushSender{}
	e := newTestEngine(w, markers, push, &testClock{t: at(8, 10)})

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 || report.Failed != 0 {
		t.Errorf("expected the reminder to count as sent, got %+v", report)
	}
}

func TestTick_InProgress(t *testing.T) {
	e := newTestEngine(newWorld(), NewMemoryMarkerStore(), &notification.MockPushSender{}, &testClock{t: at(8, 0)})
	e.running.Lock()
	defer e.running.Unlock()

	if _, err := e.Tick(context.Background()); !errors.Is(err, ErrTickInProgress) {
		t.Errorf("expected ErrTickInProgress, got %v", err)
	}
}

func TestTick_PagesThroughPatients(t *testing.T) {
	w := newWorld()
	med := w.addMedicament("Insulina")
	for i := 0; i < 5; i++ {
		w.addPatient("0 8 * * *", med)
	}
	push := &notification.MockPushSender{}
	e := newTestEngine(w, NewMemoryMarkerStore(), push, &testClock{t: at(8, 10)})

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PatientsScanned != 5 || report.Sent != 5 {
		t.Errorf("expected every patient reminded, got %+v", report)
	}
	if w.pagesRead != 3 {
		t.Errorf("expected 3 pages of 2, read %d", w.pagesRead)
	}
}

func TestTick_SkipsPatientsWithoutTreatmentOrValidRules(t *testing.T) {
	w := newWorld()
	med := w.addMedicament("Insulina")
	w.addPatient("0 8 * * *", med)
	noTreatment := w.addPatient("0 8 * * *", med)
	delete(w.treatments, noTreatment)
	w.addPatient("not a rule", med)
	push := &notification.MockPushSender{}
	e := newTestEngine(w, NewMemoryMarkerStore(), push, &testClock{t: at(8, 10)})

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.PatientsScanned != 3 || report.Sent != 1 {
		t.Errorf("expected only the valid patient reminded, got %+v", report)
	}
}

func TestTick_ListFailureAborts(t *testing.T) {
	w := newWorld()
	w.listErr = errors.New("connection reset")
	e := newTestEngine(w, NewMemoryMarkerStore(), &notification.MockPushSender{}, &testClock{t: at(8, 10)})

	if _, err := e.Tick(context.Background()); err == nil {
		t.Error("expected error when patients cannot be listed")
	}
}

func TestTick_DoseBeforeMidnightRemindedAfter(t *testing.T) {
	w := newWorld()
	w.addPatient("50 23 * * *", w.addMedicament("Insulina"))
	push := &notification.MockPushSender{}
	e := newTestEngine(w, NewMemoryMarkerStore(), push, &testClock{t: time.Date(2024, 1, 2, 0, 5, 0, 0, time.UTC)})

	report, err := e.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Sent != 1 {
		t.Errorf("expected the 23:50 dose to be reminded at 00:05, got %+v", report)
	}
}

func TestTick_TwoMedicamentsSameInstant(t *testing.T) {
	w := newWorld()
	patient := w.addPatient("0 8 * * *", w.addMedicament("Insulina"), w.addMedicament("Metformina"))
	markers := NewMemoryMarkerStore()
	push := &notification.MockPushSender{}
	e := newTestEngine(w, markers, push, &testClock{t: at(8, 10)})

	if _, err := e.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(push.Calls()) != 2 {
		t.Errorf("expected one push per medicament, got %d", len(push.Calls()))
	}
	if ms, _ := markers.ListMarkers(context.Background(), patient); len(ms) != 2 {
		t.Errorf("expected two markers, got %d", len(ms))
	}
}

func TestPrune(t *testing.T) {
	markers := NewMemoryMarkerStore()
	patient := uuid.New()
	ctx := context.Background()
	markers.AppendMarker(ctx, Marker{PatientID: patient, MedicamentID: uuid.New(), ExpectedAt: at(8, 0).AddDate(0, 0, -40)})
	markers.AppendMarker(ctx, Marker{PatientID: patient, MedicamentID: uuid.New(), ExpectedAt: at(8, 0).AddDate(0, 0, -2)})
	e := newTestEngine(newWorld(), markers, &notification.MockPushSender{}, &testClock{t: at(8, 0)})

	n, err := e.Prune(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 pruned marker, got %d", n)
	}
	if ms, _ := e.Markers(ctx, patient); len(ms) != 1 {
		t.Errorf("expected 1 remaining marker, got %d", len(ms))
	}
}
