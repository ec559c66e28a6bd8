package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/unirepo/internal/catalog"
	"github.com/starford/unirepo/internal/catalogservice"
	"github.com/starford/unirepo/internal/schema"
	"github.com/starford/unirepo/internal/testutil"
)

type testEnv struct {
	svc    *catalogservice.Service
	router http.Handler
	root   string
}

func newTestEnv(t *testing.T, authToken string, withIndex bool) *testEnv {
	t.Helper()
	root, store := testutil.TestSite(t)

	var opts []catalogservice.Option
	if withIndex {
		opts = append(opts, catalogservice.WithIndex(testutil.TestDB(t)))
	}
	catalogs := []catalog.Options{
		{Name: "exams", SourceDir: "arquivos", Output: "dados.json", Schema: schema.Exams()},
		{Name: "projects", SourceDir: "projetos", Output: "projetos.json", CreateMissing: true, Schema: schema.Projects()},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := catalogservice.NewService(store, catalogs, logger, opts...)

	// Minimal SSE handler stub: writes headers and blocks until context done.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	router := NewRouter(svc, authToken != "", authToken, sseHandler)
	return &testEnv{svc: svc, router: router, root: root}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) build(t *testing.T, name string) {
	t.Helper()
	if _, err := e.svc.Rebuild(context.Background(), name, nil); err != nil {
		t.Fatalf("Rebuild(%s): %v", name, err)
	}
}

func TestGetCatalog(t *testing.T) {
	env := newTestEnv(t, "", false)
	testutil.Touch(t, env.root, "arquivos", "Calculo-I_Silva_P1_2023.pdf")
	env.build(t, "exams")

	w := env.do(httptest.NewRequest(http.MethodGet, "/catalogs/exams", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	onDisk, err := os.ReadFile(filepath.Join(env.root, "dados.json"))
	if err != nil {
		t.Fatal(err)
	}
	if w.Body.String() != string(onDisk) {
		t.Errorf("body differs from file:\n%s\nvs\n%s", w.Body.String(), onDisk)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/catalogs/exams", nil)
	req.Header.Set("If-None-Match", etag)
	if w := env.do(req); w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestGetCatalog_NotBuilt(t *testing.T) {
	env := newTestEnv(t, "", false)
	if w := env.do(httptest.NewRequest(http.MethodGet, "/catalogs/exams", nil)); w.Code != http.StatusNotFound {
		t.Errorf("unbuilt = %d, want 404", w.Code)
	}
	if w := env.do(httptest.NewRequest(http.MethodGet, "/catalogs/nope", nil)); w.Code != http.StatusNotFound {
		t.Errorf("unknown = %d, want 404", w.Code)
	}
}

func TestGetFacet(t *testing.T) {
	env := newTestEnv(t, "", false)
	testutil.Touch(t, env.root, "arquivos", "Fisica_Ana_P1_2023.pdf", "Calculo-I_Silva_P1_2023.pdf", "Fisica_Bia_Lista-1_2022.pdf")
	env.build(t, "exams")

	w := env.do(httptest.NewRequest(http.MethodGet, "/catalogs/exams/facets/materia", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp FacetResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Field != "materia" || strings.Join(resp.Values, ",") != "Calculo I,Fisica" {
		t.Errorf("resp = %+v", resp)
	}

	cases := map[string]int{
		"/catalogs/exams/facets/nope":      http.StatusBadRequest,
		"/catalogs/nope/facets/materia":    http.StatusNotFound,
		"/catalogs/projects/facets/titulo": http.StatusNotFound,
	}
	for path, want := range cases {
		if w := env.do(httptest.NewRequest(http.MethodGet, path, nil)); w.Code != want {
			t.Errorf("GET %s = %d, want %d", path, w.Code, want)
		}
	}
}

func TestListCatalogs(t *testing.T) {
	env := newTestEnv(t, "", false)
	testutil.Touch(t, env.root, "projetos", "App_Ana_web.pdf", "Bot_Rui_ia.pdf")
	env.build(t, "projects")

	w := env.do(httptest.NewRequest(http.MethodGet, "/catalogs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp CatalogListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Catalogs) != 2 {
		t.Fatalf("catalogs = %d, want 2", len(resp.Catalogs))
	}
	if resp.Catalogs[1].Name != "projects" || resp.Catalogs[1].Accepted != 2 {
		t.Errorf("projects = %+v", resp.Catalogs[1])
	}
}

func TestRebuildCatalog(t *testing.T) {
	env := newTestEnv(t, "", false)
	testutil.Touch(t, env.root, "arquivos", "A_B_C_2020.pdf", "short_name.pdf", "notes.txt")

	w := env.do(httptest.NewRequest(http.MethodPost, "/catalogs/exams/rebuild", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp RebuildResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Seen != 2 || resp.Accepted != 1 || len(resp.Rejections) != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Rejections[0].Name != "short_name.pdf" || resp.Rejections[0].Want != 4 {
		t.Errorf("rejection = %+v", resp.Rejections[0])
	}
}

func TestRebuildCatalog_SourceMissing(t *testing.T) {
	env := newTestEnv(t, "", false)
	w := env.do(httptest.NewRequest(http.MethodPost, "/catalogs/exams/rebuild", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, "", true)
	testutil.Touch(t, env.root, "arquivos", "Calculo_Silva_P1_2023.pdf", "Fisica_Souza_P2_2022.pdf")
	env.build(t, "exams")

	w := env.do(httptest.NewRequest(http.MethodGet, "/search?q=Silva", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(resp.Results))
	}
	if got, _ := resp.Results[0].Record.Get("arquivo"); got != "arquivos/Calculo_Silva_P1_2023.pdf" {
		t.Errorf("arquivo = %q", got)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	env := newTestEnv(t, "", true)
	if w := env.do(httptest.NewRequest(http.MethodGet, "/search", nil)); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchIndexDisabled(t *testing.T) {
	env := newTestEnv(t, "", false)
	if w := env.do(httptest.NewRequest(http.MethodGet, "/search?q=x", nil)); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAuthMiddleware_ReadsArePublic(t *testing.T) {
	env := newTestEnv(t, "secret123", false)
	if w := env.do(httptest.NewRequest(http.MethodGet, "/catalogs", nil)); w.Code != http.StatusOK {
		t.Errorf("list without token = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	env := newTestEnv(t, "secret123", false)
	if w := env.do(httptest.NewRequest(http.MethodPost, "/catalogs/projects/rebuild", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	env := newTestEnv(t, "secret123", false)
	req := httptest.NewRequest(http.MethodPost, "/catalogs/projects/rebuild", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	env := newTestEnv(t, "secret123", false)
	req := httptest.NewRequest(http.MethodPost, "/catalogs/projects/rebuild", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("authed rebuild = %d, want 200", w.Code)
	}
}

func TestSSEEvents(t *testing.T) {
	env := newTestEnv(t, "tok", false)

	// The SSE handler writes 200 and blocks, so cancel after a short time.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Errorf("events = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}
}

// Upload tests.

func uploadFile(t *testing.T, env *testEnv, catalogName, filename string, content []byte, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/catalogs/"+catalogName+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return env.do(req)
}

func TestUploadFile(t *testing.T) {
	env := newTestEnv(t, "", false)
	content := []byte("%PDF-1.4 test")

	w := uploadFile(t, env, "projects", "Robo_Joao_arduino.pdf", content, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Path != "projetos/Robo_Joao_arduino.pdf" || resp.Size != int64(len(content)) || resp.Accepted != 1 {
		t.Errorf("resp = %+v", resp)
	}

	got, err := os.ReadFile(filepath.Join(env.root, "projetos", "Robo_Joao_arduino.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("stored content differs")
	}
	catalogJSON, err := os.ReadFile(filepath.Join(env.root, "projetos.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(catalogJSON), `"titulo": "Robo"`) {
		t.Errorf("catalog not rebuilt:\n%s", catalogJSON)
	}
}

func TestUploadFile_InvalidName(t *testing.T) {
	env := newTestEnv(t, "", false)
	if w := uploadFile(t, env, "exams", "prova.pdf", []byte("x"), ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad layout = %d, want 400", w.Code)
	}
	if w := uploadFile(t, env, "exams", "A_B_C_2020.docx", []byte("x"), ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad extension = %d, want 400", w.Code)
	}
}

func TestUploadFile_ExistingNameConflicts(t *testing.T) {
	env := newTestEnv(t, "", false)
	if w := uploadFile(t, env, "projects", "Robo_Joao_arduino.pdf", []byte("%PDF-1.4 one"), ""); w.Code != http.StatusCreated {
		t.Fatalf("first upload = %d, body = %s", w.Code, w.Body.String())
	}
	if w := uploadFile(t, env, "projects", "Robo_Joao_arduino.pdf", []byte("%PDF-1.4 two"), ""); w.Code != http.StatusConflict {
		t.Errorf("second upload = %d, want 409", w.Code)
	}
	got, _ := os.ReadFile(filepath.Join(env.root, "projetos", "Robo_Joao_arduino.pdf"))
	if string(got) != "%PDF-1.4 one" {
		t.Errorf("stored content = %q, want first upload", got)
	}
}

func TestUploadFile_UnknownCatalog(t *testing.T) {
	env := newTestEnv(t, "", false)
	if w := uploadFile(t, env, "nope", "A_B_C.pdf", []byte("x"), ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown catalog = %d, want 404", w.Code)
	}
}

func TestUploadFile_AuthProtected(t *testing.T) {
	env := newTestEnv(t, "secret", false)
	if w := uploadFile(t, env, "projects", "A_B_C.pdf", []byte("x"), ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := uploadFile(t, env, "projects", "A_B_C.pdf", []byte("x"), "secret"); w.Code != http.StatusCreated {
		t.Errorf("with token = %d, want 201", w.Code)
	}
}

func TestUploadFile_MissingFileField(t *testing.T) {
	env := newTestEnv(t, "", false)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/catalogs/projects/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("missing field = %d, want 400", w.Code)
	}
}

func TestSiteHandler(t *testing.T) {
	root := t.TempDir()
	_ = os.WriteFile(filepath.Join(root, "dados.json"), []byte("[]\n"), 0o644)
	_ = os.WriteFile(filepath.Join(root, ".env"), []byte("TOKEN=x"), 0o644)
	h := SiteHandler(root)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dados.json", nil))
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("dados.json = %d %q", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("cache-control = %q", cc)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/.env", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf(".env = %d, want 404", w.Code)
	}
}
