package users_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shoeshop/shoeshop/internal/platform/httpx"
	"github.com/shoeshop/shoeshop/internal/rbac"
	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/shared"
	"github.com/shoeshop/shoeshop/internal/users"
	"github.com/shoeshop/shoeshop/internal/users/userstest"
)

const actorHeader = "X-Test-Actor"

type handlerHarness struct {
	router chi.Router
	repo   *userstest.Memory
}

func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)

	repo := userstest.NewMemory()
	registry := roles.NewRegistry()
	svc := users.NewService(repo, registry, users.ServiceConfig{})
	mw := rbac.Middleware{Service: rbac.NewService(svc, registry)}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if actor := req.Header.Get(actorHeader); actor != "" {
				sess.SetUser(actor)
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/users", users.NewHandler(nil, svc, mw).MountRoutes)
	return &handlerHarness{router: r, repo: repo}
}

func (h *handlerHarness) seedStaff() {
	h.repo.Add(users.User{ID: 1, Username: "owner", Flags: roles.Flags{StoreOwner: true}})
	h.repo.AddOwnerRecord(1)
	h.repo.Add(users.User{ID: 2, Username: "user2name"})
	h.repo.Add(users.User{ID: 3, Username: "manny", FirstName: "Manny", LastName: "Ger", Flags: roles.Flags{StoreManager: true}})
	h.repo.Add(users.User{ID: 4, Username: "cash", Flags: roles.Flags{Cashier: true}})
}

func (h *handlerHarness) do(method, path, actor, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *handlerHarness) postJSON(path, actor, body string) *httptest.ResponseRecorder {
	return h.do(http.MethodPost, path, actor, "application/json", body)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHandlerAssignCashier(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	rec := h.postJSON("/users/assign-cashier", "1", `{"user_ids":["2",999,"abc"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "cashier", body["role"])
	assert.Equal(t, []any{"user2name"}, body["assigned_users"])
	assert.Equal(t, []any{"999"}, body["not_found_ids"])
	assert.Equal(t, []any{"abc"}, body["invalid_ids"])
	assert.Equal(t, "User user2name has been assigned as a cashier.", body["message"])
	assert.NotContains(t, body, "errors")
}

func TestHandlerEmptyBatch(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	rec := h.postJSON("/users/assign-cashier", "1", `{"user_ids":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Detail, "no user IDs provided")

	rec = h.postJSON("/users/dismiss-role", "1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.postJSON("/users/assign-cashier", "1", `{"user_ids":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAuthorization(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	cases := []struct {
		name   string
		path   string
		actor  string
		status int
	}{
		{"anonymous", "/users/assign-cashier", "", http.StatusUnauthorized},
		{"stale session", "/users/assign-cashier", "50", http.StatusUnauthorized},
		{"cashier cannot assign cashiers", "/users/assign-cashier", "4", http.StatusForbidden},
		{"manager assigns cashiers", "/users/assign-cashier", "3", http.StatusOK},
		{"manager cannot assign managers", "/users/assign-store-manager", "3", http.StatusForbidden},
		{"owner assigns managers", "/users/assign-store-manager", "1", http.StatusOK},
		{"owner is not a manager", "/users/assign-inventory-manager", "1", http.StatusForbidden},
		{"manager assigns inventory", "/users/assign-inventory-manager", "3", http.StatusOK},
		{"manager assigns sales", "/users/assign-sales-associate", "3", http.StatusOK},
		{"owner assigns customer service", "/users/assign-customer-service", "1", http.StatusOK},
		{"manager cannot dismiss", "/users/dismiss-role", "3", http.StatusForbidden},
		{"manager cannot add owners", "/users/assign-store-owner", "3", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.postJSON(tc.path, tc.actor, `{"user_ids":["2"]}`)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandlerBootstrapStoreOwner(t *testing.T) {
	h := newHandlerHarness(t)
	h.repo.Add(users.User{ID: 1, Username: "founder"})
	h.repo.Add(users.User{ID: 2, Username: "early"})

	rec := h.postJSON("/users/assign-store-owner", "2", `{"user_ids":["2"]}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Detail, "only the first registered user")

	rec = h.postJSON("/users/assign-store-owner", "1", `{"user_ids":[]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "You have been assigned as the first store owner.", body["message"])
	assert.True(t, h.repo.HasOwnerRecord(1))

	// The seat is taken, so the bootstrap capability is gone.
	rec = h.postJSON("/users/assign-store-owner", "2", `{"user_ids":["2"]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, h.repo.HasOwnerRecord(2))
}

func TestHandlerBootstrapIgnoresBody(t *testing.T) {
	h := newHandlerHarness(t)
	h.repo.Add(users.User{ID: 1, Username: "founder"})
	h.repo.Add(users.User{ID: 2, Username: "early"})

	rec := h.postJSON("/users/assign-store-owner", "2", `{not json`)
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = h.postJSON("/users/assign-store-owner", "1", `{not json`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, h.repo.HasOwnerRecord(1))

	// With the seat taken the body matters again.
	rec = h.postJSON("/users/assign-store-owner", "1", `{not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Contains(t, problem.Detail, "malformed JSON body")

	rec = h.postJSON("/users/assign-cashier", "1", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerDismissForm(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	form := url.Values{"user_ids": {"4", "2", "nope"}}
	rec := h.do(http.MethodPost, "/users/dismiss-role", "1", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, []any{"cash"}, body["dismissed_users"])
	assert.Equal(t, []any{"2"}, body["no_roles_ids"])
	assert.Equal(t, []any{"nope"}, body["not_found_ids"])
	assert.Equal(t, "User cash has been dismissed as a cashier.", body["message"])
}

func TestHandlerStaffMembers(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	rec := h.do(http.MethodGet, "/users/staff-members", "3", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["count"])
	assert.EqualValues(t, 10, body["page_size"])
	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 3)
	manager := results[1].(map[string]any)
	assert.Equal(t, "manny", manager["username"])
	assert.Equal(t, "Manny Ger", manager["full_name"])
	assert.Equal(t, "store_manager", manager["role"])

	rec = h.do(http.MethodGet, "/users/staff-members?role_type=cashier&page_size=1", "3", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Len(t, body["results"], 1)

	rec = h.do(http.MethodGet, "/users/staff-members?page=9", "3", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, []any{}, body["results"])

	rec = h.do(http.MethodGet, "/users/staff-members?page=1000000000000000000", "3", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.Equal(t, []any{}, body["results"])
	assert.EqualValues(t, 3, body["count"])

	rec = h.do(http.MethodGet, "/users/staff-members?role_type=janitor", "3", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "Invalid Role", problem.Title)

	rec = h.do(http.MethodGet, "/users/staff-members", "1", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerProfile(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	rec := h.do(http.MethodPatch, "/users/3", "2", "application/json", `{"first_name":"X"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPatch, "/users/2", "2", "application/json", `{"email":"bad"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPatch, "/users/2", "2", "application/json", `{"first_name":"Uma"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Uma", decodeBody(t, rec)["first_name"])

	rec = h.do(http.MethodGet, "/users/2", "1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user2name", decodeBody(t, rec)["username"])

	rec = h.do(http.MethodGet, "/users/77", "1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerListAndDelete(t *testing.T) {
	h := newHandlerHarness(t)
	h.seedStaff()

	rec := h.do(http.MethodGet, "/users/", "1", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, decodeBody(t, rec)["count"])

	rec = h.do(http.MethodDelete, "/users/2", "1", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := h.repo.User(2)
	assert.False(t, ok)

	rec = h.do(http.MethodDelete, "/users/2", "1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
