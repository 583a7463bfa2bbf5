package reminder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glucohealth/glucohealth/internal/platform/notification"
)

func TestHandler_ListPatientReminders(t *testing.T) {
	markers := NewMemoryMarkerStore()
	patient := uuid.New()
	markers.AppendMarker(context.Background(), Marker{PatientID: patient, MedicamentID: uuid.New(), ExpectedAt: at(8, 0), NotifiedAt: at(8, 1)})
	h := NewHandler(newTestEngine(newWorld(), markers, &notification.MockPushSender{}, &testClock{t: at(9, 0)}))
	e := echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(patient.String())

	if err := h.ListPatientReminders(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body []Marker
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || !body[0].ExpectedAt.Equal(at(8, 0)) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_ListPatientReminders_StoreDown(t *testing.T) {
	markers := &flakyMarkers{MemoryMarkerStore: NewMemoryMarkerStore(), listErr: ErrMarkerStoreUnavailable}
	h := NewHandler(newTestEngine(newWorld(), markers, &notification.MockPushSender{}, &testClock{t: at(9, 0)}))

	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.ListPatientReminders(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", err)
	}
}

func TestHandler_InvalidID(t *testing.T) {
	h := NewHandler(newTestEngine(newWorld(), NewMemoryMarkerStore(), &notification.MockPushSender{}, &testClock{t: at(9, 0)}))
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.ListPatientReminders(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_RunTick(t *testing.T) {
	w := newWorld()
	w.addPatient("0 8 * * *", w.addMedicament("Insulina"))
	h := NewHandler(newTestEngine(w, NewMemoryMarkerStore(), &notification.MockPushSender{}, &testClock{t: at(8, 10)}))

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	if err := h.RunTick(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var report TickReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Sent != 1 {
		t.Errorf("expected 1 sent, got %+v", report)
	}
}
