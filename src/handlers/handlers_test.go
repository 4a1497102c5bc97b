package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/conciliador/src/database"
	"github.com/username/conciliador/src/model"
	"github.com/username/conciliador/src/processors"
	"github.com/username/conciliador/src/security"
	"github.com/username/conciliador/src/services"
)

var testCSRFKey = []byte("test-csrf-key")

type testEnv struct {
	t      *testing.T
	router http.Handler
	auth   *security.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	sourceURL, err := database.MigrationsSourceURL(filepath.Join("..", "..", "db", "migrations"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, sourceURL))
	previous := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = previous
		db.Close()
	})

	auth := security.NewAuthService(strings.Repeat("s", 32), time.Hour)
	sessions := services.NewSessionStore(services.NewSessionCache(time.Hour))
	roster := services.NewRosterService(db)
	consolidation := services.NewConsolidationService(nil, processors.NewNormalizer(), processors.NewRosterProcessor(), roster, cache.New(time.Minute, time.Minute))
	exporter := services.NewExportService()
	const maxBytes = 1 << 20

	userHandler := NewUserHandler(auth, services.NewMFAService("Conciliador Teste"), sessions)
	txHandler := NewTransactionHandler(consolidation, processors.NewSummaryProcessor(), exporter, sessions)
	uploadHandler := NewUploadHandler(consolidation, sessions, maxBytes)
	auditHandler := NewAuditHandler(services.NewAuditService(processors.NewAuditor(processors.DefaultAuditTolerance), 0), exporter, sessions, maxBytes)
	rosterHandler := NewRosterHandler(roster, maxBytes)

	r := chi.NewRouter()
	r.Use(ContextualLoggerMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/csrf", CSRFTokenHandler(testCSRFKey))
		r.With(CSRFMiddleware(testCSRFKey)).Post("/auth/login", userHandler.LoginUserHandler)
		r.Group(func(r chi.Router) {
			r.Use(CSRFMiddleware(testCSRFKey))
			r.Use(userHandler.AuthMiddleware)
			r.Get("/sources", txHandler.HandleGetSources)
			r.Post("/transactions/load", txHandler.HandleLoad)
			r.Get("/transactions", txHandler.HandleGetTransactions)
			r.Get("/transactions/summary", txHandler.HandleGetSummary)
			r.Get("/transactions/export", txHandler.HandleExport)
			r.Post("/upload", uploadHandler.HandleUpload)
			r.Post("/audit", auditHandler.HandleAudit)
			r.Get("/audit/export", auditHandler.HandleAuditExport)
			r.Get("/roster", rosterHandler.HandleGetRoster)
			r.Group(func(r chi.Router) {
				r.Use(userHandler.AdminMiddleware)
				r.Post("/roster", rosterHandler.HandleUploadRoster)
				r.Get("/admin/users", userHandler.HandleListUsers)
				r.Post("/admin/users", userHandler.HandleCreateUser)
				r.Delete("/admin/users/{userID}", userHandler.HandleDeleteUser)
			})
		})
	})

	return &testEnv{t: t, router: r, auth: auth}
}

func (e *testEnv) createUser(username, password string, admin bool) (*model.User, string) {
	e.t.Helper()
	hash, err := e.auth.HashPassword(password)
	require.NoError(e.t, err)
	u := &model.User{Username: username, Password: hash, IsAdmin: admin}
	require.NoError(e.t, u.CreateUser(database.DB))
	token, err := e.auth.GenerateToken(u.ID)
	require.NoError(e.t, err)
	return u, token
}

// do sends a request with a valid CSRF pair and, if token is set, a bearer token.
func (e *testEnv) do(method, path, token, contentType string, body io.Reader, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	csrf := signCSRFToken(testCSRFKey, "nonce")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: csrf})
	req.Header.Set(csrfHeaderName, csrf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func multipartFile(t *testing.T, field, filename, contentType, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("ana", "correct horse", false)

	rec := env.do(http.MethodPost, "/api/auth/login", "", "application/json",
		strings.NewReader(`{"username":"ana","password":"correct horse"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody(t, rec)["access_token"])

	rec = env.do(http.MethodPost, "/api/auth/login", "", "application/json",
		strings.NewReader(`{"username":"ana","password":"wrong"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodPost, "/api/auth/login", "", "application/json",
		strings.NewReader(`{"username":"nobody","password":"whatever1"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFRequiredOnMutations(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	forged := "nonce.forged"
	req = httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: forged})
	req.Header.Set(csrfHeaderName, forged)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/transactions", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(http.MethodGet, "/api/transactions", "not-a-jwt", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

const uploadContent = "CNPJ;Valor Bruto;Valor Líquido;Data da Venda;Estabelecimento;Forma de Pagamento\n" +
	"11.222.333/0001-81;100,00;98,00;05/03/2024;Padaria;Pix\n" +
	"11.222.333/0001-81;50,00;49,00;06/04/2024;Padaria;Cartão de Crédito\n"

func TestUploadThenQueryTable(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser("ana", "correct horse", false)

	body, ct := multipartFile(t, "file", "vendas.csv", "text/csv", uploadContent)
	rec := env.do(http.MethodPost, "/api/upload?source=csv_upload", token, ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), decodeBody(t, rec)["total_linhas"])

	rec = env.do(http.MethodGet, "/api/transactions", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = env.do(http.MethodGet, "/api/transactions", token, "", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = env.do(http.MethodGet, "/api/transactions?categoria=Pix", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])

	rec = env.do(http.MethodGet, "/api/transactions?de=01/04/2024&ate=30/04/2024", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["total"])

	rec = env.do(http.MethodGet, "/api/transactions/summary?dimensao=mes", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/transactions/summary?dimensao=cor", token, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/transactions/export?colunas=cnpj,bruto", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "cnpj,bruto\n11222333000181,100.00\n"), rec.Body.String())

	rec = env.do(http.MethodGet, "/api/transactions/export?colunas=senha", token, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser("ana", "correct horse", false)

	body, ct := multipartFile(t, "file", "vendas.csv", "text/csv", "CNPJ;Valor\n1;2\n")
	rec := env.do(http.MethodPost, "/api/upload?source=csv_upload", token, ct, body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	details := decodeBody(t, rec)["details"].(map[string]any)
	assert.Equal(t, "mapping", details["error_kind"])
	assert.Contains(t, details["missing_columns"], "Valor Bruto")

	body, ct = multipartFile(t, "file", "vendas.xlsx", "application/pdf", "%PDF-1.4")
	rec = env.do(http.MethodPost, "/api/upload?source=csv_upload", token, ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartFile(t, "file", "vendas.csv", "text/csv", uploadContent)
	rec = env.do(http.MethodPost, "/api/upload?source=merchant_api", token, ct, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadReportsSourceStatus(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser("ana", "correct horse", false)

	rec := env.do(http.MethodPost, "/api/transactions/load", token, "application/json",
		strings.NewReader(`{"de":"01/03/2024","ate":"31/03/2024","fontes":["merchant_api","legacy_pos"]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	session := decodeBody(t, rec)["sessao"].(map[string]any)
	results := session["resultados"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "not_configured", results[0].(map[string]any)["error_kind"])
	assert.Equal(t, "sem_dados", results[1].(map[string]any)["status"])

	rec = env.do(http.MethodPost, "/api/transactions/load", token, "application/json",
		strings.NewReader(`{"de":"31/03/2024","ate":"01/03/2024"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodPost, "/api/transactions/load", token, "application/json",
		strings.NewReader(`{"de":"01/03/2024","ate":"31/03/2024","fontes":["fax"]}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/sources", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sources []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sources))
	assert.Len(t, sources, 5)
}

func TestAuditEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.createUser("ana", "correct horse", false)

	rec := env.do(http.MethodGet, "/api/audit/export", token, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	batch := `[{"id":"A1","quantidade":3,"valor_unitario":0.125,"taxa_administrativa":2,"valor_total":0.38,"desconto":0.01}]`
	rec = env.do(http.MethodPost, "/api/audit?modo=down", token, "application/json", strings.NewReader(batch))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody(t, rec)["resumo"].(map[string]any)
	assert.Equal(t, float64(1), summary["auditados"])
	assert.Equal(t, "down", summary["modo"])

	rec = env.do(http.MethodPost, "/api/audit?modo=sideways", token, "application/json", strings.NewReader(batch))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/audit/export?colunas=id,total_normativo", token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id,total_normativo\nA1,0.38\n", rec.Body.String())
}

func TestAdminGate(t *testing.T) {
	env := newTestEnv(t)
	admin, adminToken := env.createUser("root", "correct horse", true)
	_, userToken := env.createUser("ana", "correct horse", false)

	rec := env.do(http.MethodGet, "/api/admin/users", userToken, "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/api/admin/users", adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Len(t, users, 2)

	rec = env.do(http.MethodPost, "/api/admin/users", adminToken, "application/json",
		strings.NewReader(`{"username":"bruno","email":"bruno@example.com","password":"long enough"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(http.MethodPost, "/api/admin/users", adminToken, "application/json",
		strings.NewReader(`{"username":"bruno","password":"long enough"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodDelete, fmt.Sprintf("/api/admin/users/%d", admin.ID), adminToken, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodDelete, "/api/admin/users/9999", adminToken, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRosterUploadJoinsTable(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.createUser("root", "correct horse", true)

	body, ct := multipartFile(t, "file", "carteira.csv", "text/csv", "cnpj;responsavel_comercial;produto\n11.222.333/0001-81;Ana;Maquininha Pro\n")
	rec := env.do(http.MethodPost, "/api/roster", adminToken, ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(1), decodeBody(t, rec)["importados"])

	body, ct = multipartFile(t, "file", "vendas.csv", "text/csv", uploadContent)
	rec = env.do(http.MethodPost, "/api/upload?source=csv_upload", adminToken, ct, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(http.MethodGet, "/api/transactions?responsavel=Ana", adminToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["total"])
}
