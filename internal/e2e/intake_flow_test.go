package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/milltrack-erp/milltrack/internal/app"
	"github.com/milltrack-erp/milltrack/internal/auth"
	"github.com/milltrack-erp/milltrack/internal/catalog"
	"github.com/milltrack-erp/milltrack/internal/composition"
	"github.com/milltrack-erp/milltrack/internal/dispatch"
	"github.com/milltrack-erp/milltrack/internal/importer"
	"github.com/milltrack-erp/milltrack/internal/observability"
	"github.com/milltrack-erp/milltrack/internal/receipts"
	"github.com/milltrack-erp/milltrack/internal/shared"
	_ "github.com/milltrack-erp/milltrack/internal/testing/guard"
	"github.com/milltrack-erp/milltrack/internal/workflow"
)

type stubAuthRepo struct {
	users map[string]*auth.User
}

func (r *stubAuthRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	u, ok := r.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *stubAuthRepo) FindByID(_ context.Context, id int64) (*auth.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *stubAuthRepo) CreateSession(context.Context, string, int64, time.Time, string, string) error {
	return nil
}

func (r *stubAuthRepo) DeleteSession(context.Context, string) error { return nil }

type memoryCatalog struct {
	mu       sync.Mutex
	entities map[catalog.Kind][]catalog.Entity
	brands   []catalog.Brand
	recipes  map[int64]composition.Recipe
	nextID   int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		entities: map[catalog.Kind][]catalog.Entity{},
		recipes:  map[int64]composition.Recipe{},
		nextID:   100,
	}
}

func (m *memoryCatalog) seed(kind catalog.Kind, name string) catalog.Entity {
	e, _ := m.Create(context.Background(), kind, name)
	return e
}

func (m *memoryCatalog) ListActive(_ context.Context, kind catalog.Kind) ([]catalog.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.Entity(nil), m.entities[kind]...), nil
}

func (m *memoryCatalog) LookupByName(_ context.Context, kind catalog.Kind, name string) ([]catalog.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Entity
	for _, e := range m.entities[kind] {
		if shared.NormKey(e.Name) == shared.NormKey(name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryCatalog) Create(_ context.Context, kind catalog.Kind, name string) (catalog.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e := catalog.Entity{ID: m.nextID, Name: name, IsActive: true}
	m.entities[kind] = append(m.entities[kind], e)
	return e, nil
}

func (m *memoryCatalog) Deactivate(_ context.Context, kind catalog.Kind, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entities[kind] {
		if e.ID == id {
			m.entities[kind][i].IsActive = false
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryCatalog) ListBrands(_ context.Context, yarnTypeID int64) ([]catalog.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Brand
	for _, b := range m.brands {
		if b.YarnTypeID == yarnTypeID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryCatalog) LookupBrand(_ context.Context, yarnTypeID int64, name string) ([]catalog.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []catalog.Brand
	for _, b := range m.brands {
		if b.YarnTypeID == yarnTypeID && shared.NormKey(b.Name) == shared.NormKey(name) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memoryCatalog) CreateBrand(_ context.Context, yarnTypeID int64, name string) (catalog.Brand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	b := catalog.Brand{ID: m.nextID, YarnTypeID: yarnTypeID, Name: name, IsActive: true}
	m.brands = append(m.brands, b)
	return b, nil
}

func (m *memoryCatalog) ListRecipes(_ context.Context) (map[int64]composition.Recipe, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]composition.Recipe, len(m.recipes))
	for k, v := range m.recipes {
		out[k] = v
	}
	return out, nil
}

func (m *memoryCatalog) CreateGreigeType(_ context.Context, name string, components []composition.Component) (catalog.Entity, error) {
	m.mu.Lock()
	m.nextID++
	e := catalog.Entity{ID: m.nextID, Name: name, IsActive: true}
	m.entities[catalog.KindGreigeType] = append(m.entities[catalog.KindGreigeType], e)
	m.recipes[e.ID] = composition.Recipe{GreigeTypeID: e.ID, Components: components}
	m.mu.Unlock()
	return e, nil
}

type memoryWorkflowRepo struct {
	mu       sync.Mutex
	requests map[string]workflow.ChangeRequest
}

func (m *memoryWorkflowRepo) Insert(_ context.Context, cr workflow.ChangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.requests == nil {
		m.requests = map[string]workflow.ChangeRequest{}
	}
	m.requests[cr.ID] = cr
	return nil
}

func (m *memoryWorkflowRepo) Get(_ context.Context, id string) (workflow.ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.requests[id]
	if !ok {
		return workflow.ChangeRequest{}, shared.ErrNotFound
	}
	return cr, nil
}

func (m *memoryWorkflowRepo) MarkResolved(_ context.Context, id string, status workflow.Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.requests[id]
	if !ok {
		return shared.ErrNotFound
	}
	cr.Status = status
	cr.ResolutionReason = reason
	m.requests[id] = cr
	return nil
}

func (m *memoryWorkflowRepo) ListPending(_ context.Context, limit, offset int) ([]workflow.ChangeRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []workflow.ChangeRequest
	for _, cr := range m.requests {
		if cr.Status == workflow.StatusPending {
			pending = append(pending, cr)
		}
	}
	total := len(pending)
	if offset > len(pending) {
		offset = len(pending)
	}
	pending = pending[offset:]
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, total, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	entries []workflow.HistoryEntry
}

func (m *memoryHistory) Record(_ context.Context, entry workflow.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryHistory) List(_ context.Context, family, requestID string) ([]workflow.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workflow.HistoryEntry
	for _, e := range m.entries {
		if e.Family == family && e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

type nullAudit struct{}

func (nullAudit) Record(context.Context, shared.AuditLog) error { return nil }

type emptyReceiptsRepo struct{}

func (emptyReceiptsRepo) List(context.Context, receipts.Family, int, int) ([]receipts.DocumentSummary, int, error) {
	return nil, 0, nil
}

func (emptyReceiptsRepo) Get(context.Context, receipts.Family, int64) (receipts.DocumentSummary, error) {
	return receipts.DocumentSummary{}, shared.ErrNotFound
}

// backendStub answers a fixed subset of procedure names; everything else
// reports SQLSTATE 42883 so the dispatcher keeps probing.
type backendStub struct {
	mu     sync.Mutex
	nextID int
	known  map[string]bool
}

func (b *backendStub) Call(_ context.Context, name string, _ map[string]any) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.known[name] {
		return nil, &pgconn.PgError{Code: "42883", Message: fmt.Sprintf("function %s does not exist", name)}
	}
	if strings.HasPrefix(name, "submit_") {
		b.nextID++
		return map[string]any{"change_request_id": strconv.Itoa(b.nextID)}, nil
	}
	return "ok", nil
}

type testEnv struct {
	catalog  *memoryCatalog
	supplier catalog.Entity
	factory  catalog.Entity
	yarn     catalog.Entity
}

func newTestRouter(t *testing.T) (*httptest.Server, *testEnv) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessions := shared.NewSessionManager(redisClient, "milltrack_session", "e2e-secret", time.Hour, false)

	managerHash, err := bcrypt.GenerateFromPassword([]byte("manager-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	clerkHash, err := bcrypt.GenerateFromPassword([]byte("clerk-pass1"), bcrypt.MinCost)
	require.NoError(t, err)
	authRepo := &stubAuthRepo{users: map[string]*auth.User{
		"manager@mill.test": {ID: 1, Email: "manager@mill.test", PasswordHash: string(managerHash), IsManager: true, IsActive: true},
		"clerk@mill.test":   {ID: 2, Email: "clerk@mill.test", PasswordHash: string(clerkHash), IsActive: true},
	}}
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessions)

	cat := newMemoryCatalog()
	supplier := cat.seed(catalog.KindSupplier, "Al Nour Trading")
	factory := cat.seed(catalog.KindFactory, "Mill One")
	yarn := cat.seed(catalog.KindYarnType, "Cotton 30/1")

	catalogService := catalog.NewService(cat, nullAudit{}, logger)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	backend := &backendStub{known: map[string]bool{
		"submit_yarn_purchase_request": true,
		"submit_greige_receipt":        true,
		"confirm_change_request":       true,
		"reject_change_request":        true,
	}}
	dispatcher := dispatch.New(backend, logger)

	wfRepo := &memoryWorkflowRepo{}
	history := &memoryHistory{}
	workflowService := workflow.NewService(wfRepo, dispatcher, history, nullAudit{}, logger)
	workflowHandler := workflow.NewHandler(logger, workflowService, history)

	receiptsService := receipts.NewService(cat, workflowService, emptyReceiptsRepo{}, logger)
	receiptsHandler := receipts.NewHandler(logger, receiptsService, nil)

	importerService := importer.NewService(cat, receiptsService, logger)
	importerHandler := importer.NewHandler(logger, importerService, nil)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          &app.Config{AppEnv: "test", AppRequestTimeout: 10 * time.Second},
		SessionManager:  sessions,
		Identity:        auth.IdentityMiddleware(authService, logger),
		AuthHandler:     authHandler,
		CatalogHandler:  catalogHandler,
		WorkflowHandler: workflowHandler,
		ReceiptsHandler: receiptsHandler,
		ImporterHandler: importerHandler,
		Metrics:         observability.NewMetrics(),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, &testEnv{catalog: cat, supplier: supplier, factory: factory, yarn: yarn}
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func login(t *testing.T, client *http.Client, baseURL, email, password string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := client.Post(baseURL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func postJSON(t *testing.T, client *http.Client, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func yarnPurchasePayload(yarnTypeID int64, supplierID, factoryID int64, noteNo string) map[string]any {
	return map[string]any{
		"supplier_id":        supplierID,
		"factory_id":         factoryID,
		"supplier_note_no":   noteNo,
		"supplier_note_date": "2025-08-14",
		"items": []map[string]any{
			{"yarn_type_id": yarnTypeID, "qty": decimal.RequireFromString("120.5"), "price": decimal.RequireFromString("41.25")},
		},
	}
}

func TestManagerSubmissionCommitsImmediately(t *testing.T) {
	srv, env := newTestRouter(t)
	client := newClient(t)
	login(t, client, srv.URL, "manager@mill.test", "manager-pass")

	resp, body := postJSON(t, client, srv.URL+"/receipts/yarn-purchases",
		yarnPurchasePayload(env.yarn.ID, env.supplier.ID, env.factory.ID, "7001"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "COMMITTED", body["outcome"])
	require.NotEmpty(t, body["request_id"])
}

func TestClerkSubmissionWaitsForApproval(t *testing.T) {
	srv, env := newTestRouter(t)

	clerk := newClient(t)
	login(t, clerk, srv.URL, "clerk@mill.test", "clerk-pass1")

	resp, body := postJSON(t, clerk, srv.URL+"/receipts/yarn-purchases",
		yarnPurchasePayload(env.yarn.ID, env.supplier.ID, env.factory.ID, "7002"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "PENDING_REVIEW", body["outcome"])
	requestID, _ := body["request_id"].(string)
	require.NotEmpty(t, requestID)

	// The clerk cannot approve their own request.
	resp, _ = postJSON(t, clerk, srv.URL+"/change-requests/yarn-purchases/"+requestID+"/approve", map[string]any{})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	manager := newClient(t)
	login(t, manager, srv.URL, "manager@mill.test", "manager-pass")

	listResp, err := manager.Get(srv.URL + "/change-requests/pending")
	require.NoError(t, err)
	var pending struct {
		Items []workflow.ChangeRequest `json:"items"`
		Total int                      `json:"total"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&pending))
	listResp.Body.Close()
	require.Equal(t, 1, pending.Total)
	require.Equal(t, requestID, pending.Items[0].ID)

	resp, _ = postJSON(t, manager, srv.URL+"/change-requests/yarn-purchases/"+requestID+"/approve", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Approving twice conflicts.
	resp, _ = postJSON(t, manager, srv.URL+"/change-requests/yarn-purchases/"+requestID+"/approve", map[string]any{})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	histResp, err := manager.Get(srv.URL + "/change-requests/yarn-purchases/" + requestID + "/history")
	require.NoError(t, err)
	defer histResp.Body.Close()
	require.Equal(t, http.StatusOK, histResp.StatusCode)
}

func TestInlineImportCreatesDocumentsAndMasters(t *testing.T) {
	srv, env := newTestRouter(t)
	client := newClient(t)
	login(t, client, srv.URL, "manager@mill.test", "manager-pass")

	text := "supplier\tfactory\tnote no\tnote date\tyarn type\tbrand\tlot\tqty\tprice\n" +
		"Fresh Supplier\tMill One\t9001\t2025-08-01\tCotton 30/1\tNile\tL1\t500\t40\n" +
		"Fresh Supplier\tMill One\t9001\t2025-08-01\tCotton 30/1\tNile\tL2\t250\t40\n" +
		"Fresh Supplier\tMill One\t9002\t2025-08-02\tCotton 30/1\t\t\t100\t39.5\n"
	resp, body := postJSON(t, client, srv.URL+"/imports/", map[string]string{"text": text})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, body["total"])
	require.EqualValues(t, 2, body["processed"])

	// The unknown supplier was created exactly once.
	matches, err := env.catalog.LookupByName(context.Background(), catalog.KindSupplier, "fresh supplier")
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	srv, env := newTestRouter(t)
	client := newClient(t)

	resp, _ := postJSON(t, client, srv.URL+"/receipts/yarn-purchases",
		yarnPurchasePayload(env.yarn.ID, env.supplier.ID, env.factory.ID, "7003"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	healthResp, err := client.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	require.Equal(t, http.StatusOK, healthResp.StatusCode)
}
