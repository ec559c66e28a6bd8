package catalogservice

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/catalog"
	"github.com/starford/unirepo/internal/index"
	"github.com/starford/unirepo/internal/schema"
	"github.com/starford/unirepo/internal/testutil"
)

type notification struct {
	catalog  string
	accepted int
	err      error
}

type recorder struct {
	mu     sync.Mutex
	events []notification
}

func (r *recorder) PublishCatalogEvent(catalog string, accepted int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notification{catalog, accepted, err})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func siteCatalogs() []catalog.Options {
	return []catalog.Options{
		{Name: "exams", SourceDir: "arquivos", Output: "dados.json", Schema: schema.Exams()},
		{Name: "projects", SourceDir: "projetos", Output: "projetos.json", CreateMissing: true, Schema: schema.Projects()},
	}
}

func newTestService(t *testing.T, opts ...Option) (*Service, string) {
	t.Helper()
	root, store := testutil.TestSite(t)
	return NewService(store, siteCatalogs(), quietLogger(), opts...), root
}

func TestRebuild_WritesCatalogAndNotifies(t *testing.T) {
	rec := &recorder{}
	svc, root := newTestService(t, WithNotifier(rec))
	testutil.Touch(t, root, "arquivos", "Calculo-I_Silva_P1_2023-1.pdf", "bad.pdf")

	res, err := svc.Rebuild(context.Background(), "exams", nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if res.Seen != 2 || res.Accepted() != 1 {
		t.Errorf("seen=%d accepted=%d, want 2/1", res.Seen, res.Accepted())
	}

	data, err := os.ReadFile(filepath.Join(root, "dados.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"materia": "Calculo I"`) {
		t.Errorf("catalog missing record:\n%s", data)
	}

	if len(rec.events) != 1 || rec.events[0].catalog != "exams" || rec.events[0].accepted != 1 || rec.events[0].err != nil {
		t.Errorf("notifications = %+v", rec.events)
	}
}

func TestRebuild_UnknownCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Rebuild(context.Background(), "nope", nil)
	if !errors.Is(err, apperr.ErrUnknownCatalog) {
		t.Errorf("err = %v, want ErrUnknownCatalog", err)
	}
}

func TestRebuild_MissingSourceNotifiesFailure(t *testing.T) {
	rec := &recorder{}
	svc, _ := newTestService(t, WithNotifier(rec))
	_, err := svc.Rebuild(context.Background(), "exams", nil)
	if !errors.Is(err, apperr.ErrSourceMissing) {
		t.Fatalf("err = %v, want ErrSourceMissing", err)
	}
	if len(rec.events) != 1 || rec.events[0].err == nil {
		t.Errorf("notifications = %+v, want one failure", rec.events)
	}
}

func TestRebuildAll_ContinuesAfterFailure(t *testing.T) {
	svc, root := newTestService(t)

	results, err := svc.RebuildAll(context.Background())
	if !errors.Is(err, apperr.ErrSourceMissing) {
		t.Errorf("err = %v, want ErrSourceMissing", err)
	}
	if len(results) != 1 || results[0].Catalog != "projects" {
		t.Fatalf("results = %+v, want only projects", results)
	}
	data, err := os.ReadFile(filepath.Join(root, "projetos.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]\n" {
		t.Errorf("projetos.json = %q, want %q", data, "[]\n")
	}
}

func TestRead(t *testing.T) {
	svc, root := newTestService(t)
	if _, _, err := svc.Read("projects"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("before build err = %v, want ErrNotFound", err)
	}
	testutil.Touch(t, root, "projetos", "App_Ana_web.pdf")
	if _, err := svc.Rebuild(context.Background(), "projects", nil); err != nil {
		t.Fatal(err)
	}
	data, sum, err := svc.Read("projects")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum) != 64 {
		t.Errorf("checksum = %q", sum)
	}
	records, err := svc.Records("projects")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (%s)", len(records), data)
	}
	if got, _ := records[0].Get("arquivo"); got != "projetos/App_Ana_web.pdf" {
		t.Errorf("arquivo = %q", got)
	}
}

func TestSummaries_WithoutIndex(t *testing.T) {
	svc, root := newTestService(t)
	testutil.Touch(t, root, "arquivos", "A_B_C_2020.pdf", "D_E_F_2021.pdf")
	if _, err := svc.Rebuild(context.Background(), "exams", nil); err != nil {
		t.Fatal(err)
	}
	sums, err := svc.Summaries()
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("summaries = %d, want 2", len(sums))
	}
	if sums[0].Name != "exams" || sums[0].Accepted != 2 || sums[0].Checksum == "" {
		t.Errorf("exams summary = %+v", sums[0])
	}
	if sums[1].Name != "projects" || sums[1].Checksum != "" {
		t.Errorf("unbuilt projects summary = %+v", sums[1])
	}
	data, err := json.Marshal(sums[1])
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "built_at") {
		t.Errorf("unbuilt summary carries built_at: %s", data)
	}
}

func TestSummaries_WithIndex(t *testing.T) {
	svc, root := newTestService(t, WithIndex(testutil.TestDB(t)))
	testutil.Touch(t, root, "arquivos", "A_B_C_2020.pdf", "broken.pdf")
	if _, err := svc.Rebuild(context.Background(), "exams", nil); err != nil {
		t.Fatal(err)
	}
	sums, err := svc.Summaries()
	if err != nil {
		t.Fatal(err)
	}
	if sums[0].Seen != 2 || sums[0].Accepted != 1 || sums[0].BuiltAt == nil {
		t.Errorf("exams summary = %+v", sums[0])
	}
}

func TestRebuildAll_PrunesUnconfiguredCatalogs(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.ReplaceCatalog(index.CatalogRow{Name: "retired"}, nil, schema.DefaultPathKey); err != nil {
		t.Fatal(err)
	}
	svc, root := newTestService(t, WithIndex(db))
	testutil.Touch(t, root, "arquivos", "A_B_C_2020.pdf")

	if _, err := svc.RebuildAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	rows, err := db.Catalogs()
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range rows {
		names = append(names, r.Name)
	}
	if got := strings.Join(names, ","); got != "exams,projects" {
		t.Errorf("indexed catalogs = %q, want exams,projects", got)
	}
}

func TestFacets(t *testing.T) {
	svc, root := newTestService(t)
	testutil.Touch(t, root, "arquivos",
		"Fisica_Ana_P1_2023.pdf", "Calculo_Silva_P1_2023.pdf", "Fisica_Bia_Lista_2022.pdf", "Álgebra_Ana_P1_2021.pdf")
	if _, err := svc.Rebuild(context.Background(), "exams", nil); err != nil {
		t.Fatal(err)
	}

	got, err := svc.Facets("exams", "materia")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "Calculo,Fisica,Álgebra" {
		t.Errorf("materia facets = %v", got)
	}
	got, _ = svc.Facets("exams", "tipo")
	if strings.Join(got, ",") != "Lista,P1" {
		t.Errorf("tipo facets = %v", got)
	}

	if _, err := svc.Facets("exams", "arquivo"); !errors.Is(err, apperr.ErrUnknownField) {
		t.Errorf("path key err = %v, want ErrUnknownField", err)
	}
	if _, err := svc.Facets("projects", "titulo"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unbuilt catalog err = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	svc, root := newTestService(t, WithIndex(testutil.TestDB(t)))
	testutil.Touch(t, root, "arquivos", "Calculo_Silva_P1_2023.pdf", "Fisica_Souza_P2_2022.pdf")
	if _, err := svc.Rebuild(context.Background(), "exams", nil); err != nil {
		t.Fatal(err)
	}

	results, err := svc.Search(context.Background(), "Souza", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if got, _ := results[0].Record.Get("materia"); got != "Fisica" {
		t.Errorf("materia = %q", got)
	}

	if _, err := svc.Search(context.Background(), "x", "nope", 10); !errors.Is(err, apperr.ErrUnknownCatalog) {
		t.Errorf("unknown catalog err = %v", err)
	}
}

func TestSearch_IndexDisabled(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Search(context.Background(), "x", "", 10); !errors.Is(err, ErrIndexDisabled) {
		t.Errorf("err = %v, want ErrIndexDisabled", err)
	}
}

func TestUpload(t *testing.T) {
	rec := &recorder{}
	svc, root := newTestService(t, WithNotifier(rec))

	up, err := svc.Upload(context.Background(), "projects", "Robo_Joao_arduino-iot.pdf", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.Path != "projetos/Robo_Joao_arduino-iot.pdf" || up.Size != 8 {
		t.Errorf("upload = %+v", up)
	}
	if got, _ := up.Record.Get("tags"); got != "arduino iot" {
		t.Errorf("tags = %q", got)
	}
	if up.Result.Accepted() != 1 {
		t.Errorf("accepted = %d, want 1", up.Result.Accepted())
	}
	if _, err := os.Stat(filepath.Join(root, "projetos", "Robo_Joao_arduino-iot.pdf")); err != nil {
		t.Errorf("uploaded file missing: %v", err)
	}
	if len(rec.events) != 1 {
		t.Errorf("notifications = %d, want 1", len(rec.events))
	}
}

func TestUpload_RefusesExistingFile(t *testing.T) {
	rec := &recorder{}
	svc, root := newTestService(t, WithNotifier(rec))
	testutil.Touch(t, root, "projetos", "Robo_Joao_arduino.pdf")
	before, _ := os.ReadFile(filepath.Join(root, "projetos", "Robo_Joao_arduino.pdf"))

	_, err := svc.Upload(context.Background(), "projects", "Robo_Joao_arduino.pdf", strings.NewReader("%PDF-1.4 new"))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	after, _ := os.ReadFile(filepath.Join(root, "projetos", "Robo_Joao_arduino.pdf"))
	if string(after) != string(before) {
		t.Errorf("existing file replaced: %q", after)
	}
	if len(rec.events) != 0 {
		t.Errorf("notifications = %d, want 0", len(rec.events))
	}
}

func TestUpload_RejectsBadNames(t *testing.T) {
	svc, root := newTestService(t)
	for _, name := range []string{"", "../A_B_C.pdf", "sub/A_B_C.pdf", ".hidden_a_b.pdf", "A_B_C.txt", "Only_Two.pdf"} {
		_, err := svc.Upload(context.Background(), "projects", name, strings.NewReader("x"))
		if !errors.Is(err, apperr.ErrInvalidName) {
			t.Errorf("Upload(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "projetos")); !os.IsNotExist(err) {
		t.Errorf("rejected uploads touched the source dir: %v", err)
	}
}

func TestRebuild_WaitsForBuildLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "build.lock")
	svc, _ := newTestService(t, WithLockFile(lockPath))

	other := flock.New(lockPath)
	if err := other.Lock(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if _, err := svc.Rebuild(ctx, "projects", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("locked rebuild err = %v, want deadline exceeded", err)
	}

	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Rebuild(context.Background(), "projects", nil); err != nil {
		t.Errorf("rebuild after unlock: %v", err)
	}
}
