package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: uuid.New(), Roles: roles}))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRequireRole_Allowed(t *testing.T) {
	c, rec := contextWithRoles(RoleConsultant)

	err := RequireRole(RoleConsultant, RoleClient)(okHandler)(c)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c, _ := contextWithRoles(RoleAdmin)

	if err := RequireRole(RoleConsultant)(okHandler)(c); err != nil {
		t.Errorf("expected admin to pass, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c, _ := contextWithRoles(RoleClient)

	err := RequireRole(RoleConsultant)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_NoIdentity(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := RequireRole(RoleClient)(okHandler)(c)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestMustIdentity(t *testing.T) {
	c, _ := contextWithRoles(RoleClient)
	id, err := MustIdentity(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.UserID == uuid.Nil {
		t.Error("expected a user id")
	}
}
