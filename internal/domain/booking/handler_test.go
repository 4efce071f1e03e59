package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/consultbook/consultbook/internal/platform/auth"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func newRequest(method, target, body string, id auth.Identity) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return req.WithContext(auth.WithIdentity(req.Context(), id))
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != code {
		t.Errorf("expected %d, got %d", code, he.Code)
	}
}

var adminID = auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleAdmin}}

func TestHandler_CreateBooking(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"consultantId":"` + f.consultant.String() + `","serviceId":"` + f.offering.ID.String() +
		`","userId":"` + f.user.String() + `","date":"2025-01-06","time":"9:00 am","amount":5000,"currency":"usd"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPost, "/", body, adminID), rec)

	if err := h.CreateBooking(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var b Booking
	json.Unmarshal(rec.Body.Bytes(), &b)
	if b.Time != "09:00" || b.Status != StatusConfirmed {
		t.Errorf("unexpected booking %+v", b)
	}

	c = e.NewContext(newRequest(http.MethodPost, "/", body, adminID), httptest.NewRecorder())
	expectHTTPError(t, h.CreateBooking(c), http.StatusConflict)
}

func TestHandler_CreateBooking_UnknownService(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"serviceId":"` + uuid.New().String() + `","userId":"` + f.user.String() + `","date":"2025-01-06","time":"09:00"}`
	c := e.NewContext(newRequest(http.MethodPost, "/", body, adminID), httptest.NewRecorder())

	expectHTTPError(t, h.CreateBooking(c), http.StatusNotFound)
}

func TestHandler_CreateBooking_BadTime(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"serviceId":"` + f.offering.ID.String() + `","userId":"` + f.user.String() + `","date":"2025-01-06","time":"noon"}`
	c := e.NewContext(newRequest(http.MethodPost, "/", body, adminID), httptest.NewRecorder())

	expectHTTPError(t, h.CreateBooking(c), http.StatusBadRequest)
}

func TestHandler_GetBooking(t *testing.T) {
	h, f, e := newTestHandler()
	b, _ := f.svc.Allocate(context.Background(), f.request("2025-01-06", "09:00"))

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", auth.Identity{UserID: f.user, Roles: []string{auth.RoleClient}}), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	if err := h.GetBooking(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetBooking_Forbidden(t *testing.T) {
	h, f, e := newTestHandler()
	b, _ := f.svc.Allocate(context.Background(), f.request("2025-01-06", "09:00"))

	c := e.NewContext(newRequest(http.MethodGet, "/", "", auth.Identity{UserID: uuid.New(), Roles: []string{auth.RoleClient}}), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	expectHTTPError(t, h.GetBooking(c), http.StatusForbidden)
}

func TestHandler_GetBooking_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(newRequest(http.MethodGet, "/", "", adminID), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	expectHTTPError(t, h.GetBooking(c), http.StatusBadRequest)
}

func TestHandler_ListBookings(t *testing.T) {
	h, f, e := newTestHandler()
	f.svc.Allocate(context.Background(), f.request("2025-01-06", "09:00"))
	f.svc.Allocate(context.Background(), f.request("2025-01-06", "09:30"))

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/api/v1/bookings", "", auth.Identity{UserID: f.user, Roles: []string{auth.RoleClient}}), rec)

	if err := h.ListBookings(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data  []Booking `json:"data"`
		Total int       `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Data) != 2 {
		t.Errorf("expected 2 bookings, got %+v", resp)
	}
}

func TestHandler_ListBookings_AdminFilter(t *testing.T) {
	h, f, e := newTestHandler()
	f.svc.Allocate(context.Background(), f.request("2025-01-06", "09:00"))

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodGet, "/api/v1/bookings?consultant_id="+f.consultant.String(), "", adminID), rec)
	if err := h.ListBookings(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("expected one booking, got %s", rec.Body.String())
	}

	c = e.NewContext(newRequest(http.MethodGet, "/api/v1/bookings?user_id=bad", "", adminID), httptest.NewRecorder())
	expectHTTPError(t, h.ListBookings(c), http.StatusBadRequest)
}

func TestHandler_UpdateStatus(t *testing.T) {
	h, f, e := newTestHandler()
	b, _ := f.svc.Allocate(context.Background(), f.request("2025-01-06", "09:00"))

	rec := httptest.NewRecorder()
	c := e.NewContext(newRequest(http.MethodPatch, "/", `{"status":"cancelled"}`, auth.Identity{UserID: f.user, Roles: []string{auth.RoleClient}}), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())

	if err := h.UpdateStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.repo.bookings[b.ID].Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", f.repo.bookings[b.ID].Status)
	}

	c = e.NewContext(newRequest(http.MethodPatch, "/", `{"status":"confirmed"}`, adminID), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	expectHTTPError(t, h.UpdateStatus(c), http.StatusConflict)
}

func TestHandler_UpdateStatus_UnknownStatus(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(newRequest(http.MethodPatch, "/", `{"status":"disputed"}`, adminID), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	expectHTTPError(t, h.UpdateStatus(c), http.StatusBadRequest)
}
