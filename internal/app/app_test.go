package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/saianfordx/vellum/internal/app"
	"github.com/saianfordx/vellum/internal/config"
	embmock "github.com/saianfordx/vellum/pkg/provider/embeddings/mock"
	"github.com/saianfordx/vellum/pkg/provider/llm"
	llmmock "github.com/saianfordx/vellum/pkg/provider/llm/mock"
	llmsim "github.com/saianfordx/vellum/pkg/provider/llm/simulated"
)

// testConfig returns a minimal all-in-memory config.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Index: config.IndexConfig{
			Backend:    config.BackendMemory,
			Dimensions: 8,
			Name:       "test-kb",
		},
		Docstore: config.DocstoreConfig{Backend: config.BackendMemory},
		Agent:    config.AgentConfig{MaxIterations: 5, Temperature: 0.2},
	}
}

// testProviders returns mock providers: an LLM that answers directly without
// tool calls and an 8-dimensional embedder.
func testProviders() *app.Providers {
	return &app.Providers{
		LLM: &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{
				Content: "The handbook covers onboarding.",
				Usage:   llm.Usage{PromptTokens: 12, CompletionTokens: 6, TotalTokens: 18},
			},
		},
		Embeddings: &embmock.Provider{DimensionsValue: 8},
	}
}

// newTestApp builds an app and registers its shutdown as cleanup.
func newTestApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()

	application, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error: %v", err)
		}
	})
	return application
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), testProviders())

	if application.Orchestrator() == nil {
		t.Error("Orchestrator() returned nil after New()")
	}
	if application.Handler() == nil {
		t.Error("Handler() returned nil after New()")
	}
}

// TestNew_NoProviders verifies the app still answers with no providers at
// all: the simulated stand-ins take over and label their output.
func TestNew_NoProviders(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), &app.Providers{})

	body := strings.NewReader(`{"question": "What is the vacation policy?"}`)
	req := httptest.NewRequest("POST", "/v1/chat", body)
	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if !strings.HasPrefix(resp.Text, llmsim.ResponseLabel) {
		t.Errorf("answer %q is not labeled with %q", resp.Text, llmsim.ResponseLabel)
	}
}

func TestApp_ChatEndpoint(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), testProviders())

	body := strings.NewReader(`{"question": "What does the handbook cover?"}`)
	req := httptest.NewRequest("POST", "/v1/chat", body)
	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, want %d (body: %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Text  string `json:"text"`
		Usage struct {
			TotalTokens int `json:"totalTokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if resp.Text != "The handbook covers onboarding." {
		t.Errorf("answer text = %q, want mock completion", resp.Text)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("usage.totalTokens = %d, want 18", resp.Usage.TotalTokens)
	}
}

func TestApp_ChatEndpoint_EmptyQuestion(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), testProviders())

	body := strings.NewReader(`{"question": "   "}`)
	req := httptest.NewRequest("POST", "/v1/chat", body)
	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("chat status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// TestApp_DocumentLifecycle uploads a document, lists it, fetches it, deletes
// it, and confirms it is gone.
func TestApp_DocumentLifecycle(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), testProviders())
	handler := application.Handler()

	// Upload.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "handbook.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("Employees get 25 vacation days. Remote work is allowed on Fridays.")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.WriteField("source", "handbook"); err != nil {
		t.Fatalf("write source field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want %d (body: %s)", rec.Code, http.StatusCreated, rec.Body.String())
	}

	var uploaded struct {
		ID         string `json:"id"`
		Source     string `json:"source"`
		Status     string `json:"status"`
		ChunkCount int    `json:"chunkCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &uploaded); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	if uploaded.ID == "" {
		t.Fatal("uploaded document has empty ID")
	}
	if uploaded.Status != "completed" {
		t.Errorf("status = %q, want %q", uploaded.Status, "completed")
	}
	if uploaded.Source != "handbook" {
		t.Errorf("source = %q, want %q", uploaded.Source, "handbook")
	}
	if uploaded.ChunkCount < 1 {
		t.Errorf("chunkCount = %d, want at least 1", uploaded.ChunkCount)
	}

	// List.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/documents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rec.Code, http.StatusOK)
	}
	var list struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("list total = %d, want 1", list.Total)
	}

	// Fetch by ID.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/documents/"+uploaded.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want %d", rec.Code, http.StatusOK)
	}

	// Delete.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("DELETE", "/v1/documents/"+uploaded.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// Gone.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/documents/"+uploaded.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// TestApp_ApplyReload verifies that agent and log level changes take effect
// without a restart while storage changes are only reported.
func TestApp_ApplyReload(t *testing.T) {
	t.Parallel()

	level := new(slog.LevelVar)
	cfg := testConfig()
	application := newTestApp(t, cfg, testProviders(), app.WithLogLevelVar(level))

	before := application.Orchestrator()

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Agent.MaxIterations = 3

	if err := application.ApplyReload(next); err != nil {
		t.Fatalf("ApplyReload() error: %v", err)
	}

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("log level after reload = %v, want %v", got, slog.LevelDebug)
	}
	if application.Orchestrator() == before {
		t.Error("orchestrator was not rebuilt after agent config change")
	}
}

func TestApp_ApplyReload_NoChanges(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), testProviders())
	before := application.Orchestrator()

	if err := application.ApplyReload(testConfig()); err != nil {
		t.Fatalf("ApplyReload() error: %v", err)
	}
	if application.Orchestrator() != before {
		t.Error("orchestrator was rebuilt although nothing changed")
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	application := newTestApp(t, testConfig(), testProviders())

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	// Give Run a moment to open the socket.
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}
}
