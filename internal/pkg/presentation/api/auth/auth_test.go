package auth

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwise/iot-gateway-monitor/internal/pkg/application/activitylogs"
	"github.com/diwise/iot-gateway-monitor/pkg/types"
	"github.com/go-chi/jwtauth/v5"
	"github.com/matryer/is"
)

func TestMissingTokenIsUnauthorized(t *testing.T) {
	is, a := testSetup(t)

	w := serve(a, a.Authenticate, "")
	is.Equal(w.Code, http.StatusUnauthorized)
}

func TestTokenSignedWithAnotherSecretIsUnauthorized(t *testing.T) {
	is, a := testSetup(t)

	_, token, err := jwtauth.New("HS256", []byte("another secret"), nil).Encode(map[string]any{"sub": "mallory", "role": "ADMIN"})
	is.NoErr(err)

	w := serve(a, a.Authenticate, token)
	is.Equal(w.Code, http.StatusUnauthorized)
}

func TestValidTokenStoresActorAndRole(t *testing.T) {
	is, a := testSetup(t)

	token, err := a.Token("alice", types.RoleUser)
	is.NoErr(err)

	var actor string
	var role types.Role

	h := a.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = activitylogs.ActorFromContext(r.Context())
		role = RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	is.Equal(actor, "alice")
	is.Equal(role, types.RoleUser)
}

func TestUserLacksManageUsers(t *testing.T) {
	is, a := testSetup(t)

	token, err := a.Token("alice", types.RoleUser)
	is.NoErr(err)

	w := serve(a, admin(a), token)
	is.Equal(w.Code, http.StatusForbidden)
}

func TestAdminHasManageUsers(t *testing.T) {
	is, a := testSetup(t)

	token, err := a.Token("bob", types.RoleAdmin)
	is.NoErr(err)

	w := serve(a, admin(a), token)
	is.Equal(w.Code, http.StatusNoContent)
}

func TestUnknownRoleHasNoRights(t *testing.T) {
	is, a := testSetup(t)

	token, err := a.Token("carol", types.Role("superuser"))
	is.NoErr(err)

	w := serve(a, admin(a), token)
	is.Equal(w.Code, http.StatusForbidden)
}

func admin(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return a.Authenticate(a.RequirePermissions(types.PermissionManageUsers)(next))
	}
}

func serve(a Authenticator, mw func(http.Handler) http.Handler, token string) *httptest.ResponseRecorder {
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func testSetup(t *testing.T) (*is.I, Authenticator) {
	is := is.New(t)

	a, err := NewAuthenticator(context.Background(), []byte("a-test-secret"), bytes.NewReader(DefaultPolicies))
	is.NoErr(err)

	return is, a
}
