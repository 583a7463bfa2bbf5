package schedule

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/glucohealth/glucohealth/internal/platform/auth"
)

func TestParseDay(t *testing.T) {
	loc := time.FixedZone("COT", -5*60*60)

	d, err := parseDay("2024-01-05", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 1, 5, 0, 0, 0, 0, loc); !d.Equal(want) {
		t.Errorf("expected %s, got %s", want, d)
	}

	if _, err := parseDay("2024-01-05T10:00:00Z", loc); err != nil {
		t.Errorf("expected RFC 3339 to parse, got %v", err)
	}
	if _, err := parseDay("05/01/2024", loc); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestHandler_GetPatientSchedule(t *testing.T) {
	f := newFakeStore()
	med := uuid.New()
	patient := f.addPatient(dailyAt8(med, date(2024, 1, 1), nil))
	f.take(patient, med, at(2024, 1, 1, 8, 15))
	h, e := NewHandler(newTestService(f, time.UTC)), echo.New()

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id", "date")
	c.SetParamValues(patient.String(), "2024-01-01")

	if err := h.GetPatientSchedule(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body []struct {
		MedicamentID string `json:"medicament_id"`
		Dose         string `json:"dose"`
		Schedule     []struct {
			Expected string  `json:"expected_taking_timestamp"`
			Actual   *string `json:"actual_taking_timestamp"`
		} `json:"schedule"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 || len(body[0].Schedule) != 1 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if body[0].Schedule[0].Expected != "2024-01-01T08:00:00Z" {
		t.Errorf("unexpected expected timestamp %s", body[0].Schedule[0].Expected)
	}
	if body[0].Schedule[0].Actual == nil || *body[0].Schedule[0].Actual != "2024-01-01T08:15:00Z" {
		t.Errorf("unexpected actual timestamp %v", body[0].Schedule[0].Actual)
	}
}

func TestHandler_GetMySchedule_NullActual(t *testing.T) {
	f := newFakeStore()
	patient := f.addPatient(dailyAt8(uuid.New(), date(2024, 1, 1), nil))
	h, e := NewHandler(newTestService(f, time.UTC)), echo.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, patient.String())
	c := e.NewContext(req.WithContext(ctx), rec)
	c.SetParamNames("date")
	c.SetParamValues("2024-01-01")

	if err := h.GetMySchedule(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body []map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	entry := body[0]["schedule"].([]any)[0].(map[string]any)
	if v, ok := entry["actual_taking_timestamp"]; !ok || v != nil {
		t.Errorf("expected explicit null actual timestamp, got %v", entry)
	}
}

func TestHandler_GetPatientSchedule_NotFound(t *testing.T) {
	h, e := NewHandler(newTestService(newFakeStore(), time.UTC)), echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id", "date")
	c.SetParamValues(uuid.NewString(), "2024-01-01")

	err := h.GetPatientSchedule(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetPatientSchedule_BadDate(t *testing.T) {
	h, e := NewHandler(newTestService(newFakeStore(), time.UTC)), echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id", "date")
	c.SetParamValues(uuid.NewString(), "tomorrow")

	err := h.GetPatientSchedule(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
