package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/qubird/crudo/api"
	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/schema"
	"github.com/qubird/crudo/storage"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubItems lets each test supply only the calls it expects.
type stubItems struct {
	listFn   func(m *models.ModelDescriptor, params models.ListParams) (*models.PaginatedResult, error)
	getFn    func(m *models.ModelDescriptor, pk string) (map[string]any, error)
	createFn func(m *models.ModelDescriptor, payload map[string]any) (map[string]any, error)
	updateFn func(m *models.ModelDescriptor, pk string, payload map[string]any) (map[string]any, error)
	deleteFn func(m *models.ModelDescriptor, pk string) error
}

func (s *stubItems) List(_ context.Context, m *models.ModelDescriptor, params models.ListParams) (*models.PaginatedResult, error) {
	return s.listFn(m, params)
}

func (s *stubItems) Get(_ context.Context, m *models.ModelDescriptor, pk string) (map[string]any, error) {
	return s.getFn(m, pk)
}

func (s *stubItems) Create(_ context.Context, m *models.ModelDescriptor, payload map[string]any) (map[string]any, error) {
	return s.createFn(m, payload)
}

func (s *stubItems) Update(_ context.Context, m *models.ModelDescriptor, pk string, payload map[string]any) (map[string]any, error) {
	return s.updateFn(m, pk, payload)
}

func (s *stubItems) Delete(_ context.Context, m *models.ModelDescriptor, pk string) error {
	return s.deleteFn(m, pk)
}

func (s *stubItems) RefreshCount(_ context.Context, _ *models.ModelDescriptor) error {
	return nil
}

type stubActions struct {
	runFn func(m *models.ModelDescriptor, action *models.ActionDescriptor, pks []string, role string) (string, int, error)
}

func (s *stubActions) Run(_ context.Context, m *models.ModelDescriptor, action *models.ActionDescriptor, pks []string, role string) (string, int, error) {
	return s.runFn(m, action, pks, role)
}

type stubStorage struct {
	items   *stubItems
	actions *stubActions
}

func (s *stubStorage) Items() storage.ItemsRepoI     { return s.items }
func (s *stubStorage) Actions() storage.ActionsRepoI { return s.actions }
func (s *stubStorage) CloseDB()                      {}

func usersRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	users := &models.ModelDescriptor{
		TableName:   "users",
		DisplayName: "Users",
		Columns: []models.ColumnDescriptor{
			{Name: "id", Kind: models.KindInteger, PrimaryKey: true, IsAutoPK: true, HasDefault: true},
			{Name: "email", Kind: models.KindString},
			{Name: "active", Kind: models.KindBoolean, HasDefault: true},
		},
		PKColumns: []string{"id"},
	}
	users.SetRowCount(3)

	r := schema.NewRegistry([]*models.ModelDescriptor{users})

	noop := func(_ context.Context, records []map[string]any, _ pgx.Tx) (string, error) {
		return "", nil
	}
	assert.NoError(t, r.RegisterAction("users", &models.ActionDescriptor{Name: "deactivate", Label: "Deactivate", Fn: noop}))
	assert.NoError(t, r.RegisterAction("users", &models.ActionDescriptor{Name: "export", Label: "Export", Role: models.RoleViewer, Fn: noop}))

	return r
}

// headerRoleResolver resolves the role from the X-Role request header.
func headerRoleResolver(c *gin.Context) (string, error) {
	switch c.GetHeader("X-Role") {
	case models.RoleAdmin, models.RoleViewer:
		return c.GetHeader("X-Role"), nil
	}
	return "", errors.New("missing credentials")
}

func newTestRouter(t *testing.T, strg storage.StorageI) *gin.Engine {
	t.Helper()
	log := logger.NewLogger("api_test", logger.LevelError)
	return api.SetUpRouter(log, usersRegistry(t), strg, headerRoleResolver)
}

func doJSON(router *gin.Engine, method, path, role string, body string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodGet, "/api/users", "", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Not authenticated", decodeBody(t, w)["detail"])
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")
}

func TestMetaFiltersActionsByRole(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodGet, "/api/_meta/models", models.RoleViewer, "")
	assert.Equal(t, http.StatusOK, w.Code)

	var metas []map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &metas))
	assert.Len(t, metas, 1)
	assert.Equal(t, "users", metas[0]["name"])
	assert.Equal(t, "Users", metas[0]["model_name"])
	assert.Equal(t, float64(3), metas[0]["count"])

	viewerActions := metas[0]["actions"].([]any)
	assert.Len(t, viewerActions, 1, "viewer sees only viewer actions")

	w = doJSON(router, http.MethodGet, "/api/_meta/models", models.RoleAdmin, "")
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &metas))
	assert.Len(t, metas[0]["actions"].([]any), 2)
}

func TestListPassesParsedParams(t *testing.T) {
	var got models.ListParams
	items := &stubItems{
		listFn: func(_ *models.ModelDescriptor, params models.ListParams) (*models.PaginatedResult, error) {
			got = params
			return &models.PaginatedResult{
				Items:   []map[string]any{{"id": 1, "email": "a@b.com"}},
				Total:   1,
				Page:    params.Page,
				PerPage: 50,
				Pages:   1,
			}, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodGet, "/api/users?page=2&per_page=50&sort_by=email&sort_dir=desc&search=bob", models.RoleViewer, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ListParams{Page: 2, PerPage: 50, SortBy: "email", SortDir: "desc", Search: "bob"}, got)

	body := decodeBody(t, w)
	assert.Equal(t, float64(1), body["total"])
	assert.Equal(t, float64(2), body["page"])
}

func TestListUnknownTable(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodGet, "/api/ghosts", models.RoleViewer, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "unknown table: ghosts", decodeBody(t, w)["detail"])
}

func TestListNonIntegerPage(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodGet, "/api/users?page=abc", models.RoleViewer, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "page must be an integer", decodeBody(t, w)["detail"])
}

func TestListInvalidSortSurfacesAs422(t *testing.T) {
	items := &stubItems{
		listFn: func(_ *models.ModelDescriptor, _ models.ListParams) (*models.PaginatedResult, error) {
			return nil, &models.InvalidSortError{Column: "nope"}
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodGet, "/api/users?sort_by=nope", models.RoleViewer, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeBody(t, w)["detail"], "nope")
}

func TestGetByPK(t *testing.T) {
	items := &stubItems{
		getFn: func(_ *models.ModelDescriptor, pk string) (map[string]any, error) {
			assert.Equal(t, "7", pk)
			return map[string]any{"id": 7, "email": "a@b.com"}, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodGet, "/api/users/7", models.RoleViewer, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@b.com", decodeBody(t, w)["email"])
}

func TestGetMissingRow(t *testing.T) {
	items := &stubItems{
		getFn: func(_ *models.ModelDescriptor, _ string) (map[string]any, error) {
			return nil, &models.NotFoundError{Message: "item not found"}
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodGet, "/api/users/999", models.RoleViewer, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRequiresAdmin(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodPost, "/api/users", models.RoleViewer, `{"email":"a@b.com"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Admin access required", decodeBody(t, w)["detail"])
}

func TestCreateCoercesAndReturnsRow(t *testing.T) {
	var got map[string]any
	items := &stubItems{
		createFn: func(_ *models.ModelDescriptor, payload map[string]any) (map[string]any, error) {
			got = payload
			return map[string]any{"id": 12, "email": "a@b.com", "active": true}, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodPost, "/api/users", models.RoleAdmin, `{"id": 99, "email": "a@b.com", "active": "true"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	// auto PK is dropped, boolean string coerced
	assert.Equal(t, map[string]any{"email": "a@b.com", "active": true}, got)
	assert.Equal(t, float64(12), decodeBody(t, w)["id"])
}

func TestCreateMissingRequiredField(t *testing.T) {
	called := false
	items := &stubItems{
		createFn: func(_ *models.ModelDescriptor, _ map[string]any) (map[string]any, error) {
			called = true
			return nil, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodPost, "/api/users", models.RoleAdmin, `{"active": true}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.False(t, called, "storage must not be reached on validation failure")

	details := decodeBody(t, w)["detail"].([]any)
	first := details[0].(map[string]any)
	assert.Equal(t, "email", first["field"])
	assert.Equal(t, "Required", first["message"])
}

func TestCreateMalformedJSON(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodPost, "/api/users", models.RoleAdmin, `{broken`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "invalid JSON body", decodeBody(t, w)["detail"])
}

func TestCreateConflict(t *testing.T) {
	items := &stubItems{
		createFn: func(_ *models.ModelDescriptor, _ map[string]any) (map[string]any, error) {
			return nil, &models.ConflictError{Message: "duplicate key value"}
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodPost, "/api/users", models.RoleAdmin, `{"email":"a@b.com"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdatePartialPayload(t *testing.T) {
	var got map[string]any
	items := &stubItems{
		updateFn: func(_ *models.ModelDescriptor, pk string, payload map[string]any) (map[string]any, error) {
			assert.Equal(t, "7", pk)
			got = payload
			return map[string]any{"id": 7, "email": "a@b.com", "active": false}, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodPut, "/api/users/7", models.RoleAdmin, `{"active": false}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"active": false}, got)
}

func TestUpdateRequiresAdmin(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodPut, "/api/users/7", models.RoleViewer, `{"active": false}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDelete(t *testing.T) {
	items := &stubItems{
		deleteFn: func(_ *models.ModelDescriptor, pk string) error {
			assert.Equal(t, "7", pk)
			return nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodDelete, "/api/users/7", models.RoleAdmin, "")

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestDeleteBlockedByForeignKey(t *testing.T) {
	items := &stubItems{
		deleteFn: func(_ *models.ModelDescriptor, _ string) error {
			return &models.ConflictError{Message: "violates foreign key constraint"}
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodDelete, "/api/users/7", models.RoleAdmin, "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRunAction(t *testing.T) {
	actions := &stubActions{
		runFn: func(_ *models.ModelDescriptor, action *models.ActionDescriptor, pks []string, role string) (string, int, error) {
			assert.Equal(t, "deactivate", action.Name)
			assert.Equal(t, []string{"1", "2"}, pks)
			assert.Equal(t, models.RoleAdmin, role)
			return "Deactivated 2 users", 2, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: &stubItems{}, actions: actions})

	w := doJSON(router, http.MethodPost, "/api/users/_action/deactivate", models.RoleAdmin, `{"pks":["1","2"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Deactivated 2 users", body["message"])
	assert.Equal(t, float64(2), body["count"])
}

func TestRunActionUnknownName(t *testing.T) {
	router := newTestRouter(t, &stubStorage{items: &stubItems{}})

	w := doJSON(router, http.MethodPost, "/api/users/_action/vaporize", models.RoleAdmin, `{"pks":["1"]}`)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeBody(t, w)["detail"], "vaporize")
}

func TestRunActionForbiddenForViewer(t *testing.T) {
	actions := &stubActions{
		runFn: func(_ *models.ModelDescriptor, _ *models.ActionDescriptor, _ []string, _ string) (string, int, error) {
			return "", 0, &models.ForbiddenError{Message: "action not permitted"}
		},
	}
	router := newTestRouter(t, &stubStorage{items: &stubItems{}, actions: actions})

	w := doJSON(router, http.MethodPost, "/api/users/_action/deactivate", models.RoleViewer, `{"pks":["1"]}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRunActionEmptySelection(t *testing.T) {
	actions := &stubActions{
		runFn: func(_ *models.ModelDescriptor, _ *models.ActionDescriptor, _ []string, _ string) (string, int, error) {
			return "", 0, models.NewValidationError("no records selected")
		},
	}
	router := newTestRouter(t, &stubStorage{items: &stubItems{}, actions: actions})

	w := doJSON(router, http.MethodPost, "/api/users/_action/deactivate", models.RoleAdmin, `{"pks":[]}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "no records selected", decodeBody(t, w)["detail"])
}

func TestRunActionCallableFailure(t *testing.T) {
	actions := &stubActions{
		runFn: func(_ *models.ModelDescriptor, _ *models.ActionDescriptor, _ []string, _ string) (string, int, error) {
			return "", 0, &models.ActionError{Action: "deactivate", Message: "user 1 is protected"}
		},
	}
	router := newTestRouter(t, &stubStorage{items: &stubItems{}, actions: actions})

	w := doJSON(router, http.MethodPost, "/api/users/_action/deactivate", models.RoleAdmin, `{"pks":["1"]}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Action failed: user 1 is protected", decodeBody(t, w)["detail"])
}

func TestCompositeKeyTravelsUntouched(t *testing.T) {
	items := &stubItems{
		getFn: func(_ *models.ModelDescriptor, pk string) (map[string]any, error) {
			assert.Equal(t, "5--7", pk)
			return map[string]any{"id": pk}, nil
		},
	}
	router := newTestRouter(t, &stubStorage{items: items})

	w := doJSON(router, http.MethodGet, "/api/users/5--7", models.RoleViewer, "")

	assert.Equal(t, http.StatusOK, w.Code)
}
