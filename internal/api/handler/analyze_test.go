package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"serpgap/internal/api"
	"serpgap/internal/api/middleware"
	"serpgap/internal/apify"
	"serpgap/internal/domain"
	"serpgap/internal/logger"
	"serpgap/internal/repository"
	"serpgap/internal/service"
)

// stubSerpClient returns a fixed low-authority SERP for every keyword.
type stubSerpClient struct{}

func (stubSerpClient) FetchSerp(_ context.Context, _ string, req apify.SerpRequest) (*apify.SerpResult, error) {
	res := &apify.SerpResult{Keyword: req.Keyword}
	for i := 1; i <= 6; i++ {
		res.Entries = append(res.Entries, apify.SerpEntry{
			Position: i,
			URL:      fmt.Sprintf("https://%s-%d.example.com/", req.Keyword, i),
		})
	}
	return res, nil
}

func (stubSerpClient) FetchMetrics(_ context.Context, _ string, urls []string) ([]domain.URLMetrics, error) {
	out := make([]domain.URLMetrics, len(urls))
	for i, u := range urls {
		out[i] = domain.URLMetrics{URL: u, DomainAuthority: 10}
	}
	return out, nil
}

type testEnv struct {
	router       http.Handler
	db           *gorm.DB
	userID       string
	webhookToken string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := logger.NewDefault()
	userRepo := repository.NewUserRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)
	analysisRepo := repository.NewAnalysisLogRepository(db)

	authService := service.NewAuthService(userRepo, "test-secret", time.Hour, log)
	credentialService := service.NewCredentialService(credentialRepo, log)
	pool := service.NewCredentialPool(credentialRepo, log)
	analysisService := service.NewAnalysisService(pool, analysisRepo, stubSerpClient{}, log, nil)

	user, webhookToken, err := authService.Register(context.Background(), "analyst@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("failed to register test user: %v", err)
	}

	router := api.SetupRouter(
		api.Services{Auth: authService, Analysis: analysisService, Credential: credentialService},
		nil,
		log,
		"test",
		middleware.CORSConfig{AllowAllOrigins: true},
	)

	return &testEnv{
		router:       router,
		db:           db,
		userID:       user.ID,
		webhookToken: webhookToken,
	}
}

func (e *testEnv) post(t *testing.T, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestAnalyze_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/analyze", "", map[string]interface{}{"keywords": []string{"content gap"}})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	w = env.post(t, "/analyze", "not-the-token", map[string]interface{}{"keywords": []string{"content gap"}})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bogus token, got %d", w.Code)
	}
}

func TestAnalyze_ValidatesKeywords(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/analyze", env.webhookToken, map[string]interface{}{"keywords": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty keywords, got %d", w.Code)
	}

	tooMany := make([]string, 31)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("kw-%d", i)
	}
	w = env.post(t, "/analyze", env.webhookToken, map[string]interface{}{"keywords": tooMany})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for 31 keywords, got %d", w.Code)
	}

	w = env.post(t, "/analyze", env.webhookToken, map[string]interface{}{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing keywords, got %d", w.Code)
	}

	w = env.post(t, "/analyze", env.webhookToken, map[string]interface{}{"keywords": []string{"   "}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a blank keyword, got %d", w.Code)
	}
}

func TestAnalyze_NoCredentialsIsBadRequest(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/analyze", env.webhookToken, map[string]interface{}{"keywords": []string{"content gap"}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 with an empty credential pool, got %d", w.Code)
	}
	if body := decodeErrorBody(t, w); body["error"] != "no_credentials_available" {
		t.Errorf("expected error code no_credentials_available, got %q", body["error"])
	}
}

// decodeErrorBody decodes an error response and checks it carries a message.
func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if msg, _ := body["message"].(string); msg == "" {
		t.Errorf("expected a human-readable message, got %v", body)
	}
	return body
}

func TestAnalyze_BindingErrorsCarryCode(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/analyze", env.webhookToken, map[string]interface{}{"keywords": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty keywords, got %d", w.Code)
	}
	if body := decodeErrorBody(t, w); body["error"] != "invalid_request" {
		t.Errorf("expected error code invalid_request, got %q", body["error"])
	}
}

func TestAnalyze_PersistenceFailureCarriesRequestID(t *testing.T) {
	env := newTestEnv(t)

	err := env.db.Create(&domain.Credential{
		ID: "cred-1", UserID: env.userID, Label: "main", APIKey: "token-1",
		Status: domain.CredentialStatusActive,
	}).Error
	if err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}

	// Break only the audit table so the request authenticates and then fails
	// when the pending row is written.
	if err := env.db.Migrator().DropTable(&domain.AnalysisLog{}); err != nil {
		t.Fatalf("failed to drop audit table: %v", err)
	}

	w := env.post(t, "/analyze", env.webhookToken, map[string]interface{}{"keywords": []string{"content gap"}})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when the audit row cannot be written, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeErrorBody(t, w)
	if body["error"] != "internal_error" {
		t.Errorf("expected error code internal_error, got %q", body["error"])
	}
	if id, _ := body["requestId"].(string); id == "" {
		t.Errorf("expected the failed batch's request ID in the body, got %v", body)
	}
}

func TestAnalyze_EndToEnd(t *testing.T) {
	env := newTestEnv(t)

	err := env.db.Create(&domain.Credential{
		ID: "cred-1", UserID: env.userID, Label: "main", APIKey: "token-1",
		Status: domain.CredentialStatusActive,
	}).Error
	if err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}

	w := env.post(t, "/analyze", env.webhookToken, map[string]interface{}{
		"keywords": []string{"content gap", "keyword research"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RequestID == "" {
		t.Error("expected a request ID")
	}
	if resp.KeywordsProcessed != 2 {
		t.Errorf("expected 2 keywords processed, got %d", resp.KeywordsProcessed)
	}
	for _, r := range resp.Results {
		if r.Decision != domain.DecisionWrite {
			t.Errorf("expected Write for %s, got %s", r.Keyword, r.Decision)
		}
	}
}

func TestAnalyze_DecisionConfigOverride(t *testing.T) {
	env := newTestEnv(t)

	err := env.db.Create(&domain.Credential{
		ID: "cred-1", UserID: env.userID, Label: "main", APIKey: "token-1",
		Status: domain.CredentialStatusActive,
	}).Error
	if err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}

	// The stub SERP yields six low-authority rows. Raising the threshold to
	// seven via the request-level override must flip the decision to Skip.
	w := env.post(t, "/analyze", env.webhookToken, map[string]interface{}{
		"keywords":       []string{"content gap"},
		"decisionConfig": map[string]interface{}{"minLowAuthorityCount": 7},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp service.AnalyzeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	if resp.Results[0].Decision != domain.DecisionSkip {
		t.Errorf("expected Skip with minLowAuthorityCount=7, got %s", resp.Results[0].Decision)
	}
}
