// Package catalogservice coordinates catalog builds, the search index and
// change notifications.
package catalogservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/catalog"
	"github.com/starford/unirepo/internal/checksum"
	"github.com/starford/unirepo/internal/index"
	"github.com/starford/unirepo/internal/models"
	"github.com/starford/unirepo/internal/storage"
)

const lockRetry = 50 * time.Millisecond

// ErrIndexDisabled is returned by Search when no index is attached.
var ErrIndexDisabled = errors.New("search index disabled")

// Notifier receives the outcome of every rebuild.
type Notifier interface {
	PublishCatalogEvent(catalog string, accepted int, err error)
}

// Summary describes a configured catalog and its last known build.
type Summary struct {
	Name      string    `json:"name"`
	SourceDir string    `json:"source_dir"`
	Output    string    `json:"output"`
	Checksum  string    `json:"checksum,omitempty"`
	Seen      int       `json:"seen"`
	Accepted  int       `json:"accepted"`
	BuiltAt   *time.Time `json:"built_at,omitempty"`
}

// Upload is the outcome of storing a new PDF.
type Upload struct {
	Catalog string         `json:"catalog"`
	Path    string         `json:"path"`
	Size    int64          `json:"size"`
	Record  models.Record  `json:"record"`
	Result  *models.Result `json:"-"`
}

// Option configures a Service.
type Option func(*Service)

// WithIndex attaches a search index that is refreshed after each build.
func WithIndex(db index.CatalogIndex) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithLockFile guards builds with an advisory file lock at path, so that a
// build command and a running server never write the same output at once.
// The parent directory must exist.
func WithLockFile(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.lock = flock.New(path)
		}
	}
}

// WithNotifier attaches a receiver for rebuild notifications.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// Service runs catalog builds. Builds are serialized so that watcher, HTTP
// and MCP triggered rebuilds never write the same output concurrently.
type Service struct {
	store    storage.Provider
	builder  *catalog.Builder
	catalogs []catalog.Options
	db       index.CatalogIndex
	notifier Notifier
	logger   *slog.Logger

	mu   sync.Mutex
	lock *flock.Flock
}

// NewService creates a service over the given catalogs.
func NewService(store storage.Provider, catalogs []catalog.Options, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		builder:  catalog.NewBuilder(store, logger),
		catalogs: catalogs,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalogs returns the configured catalogs in configuration order.
func (s *Service) Catalogs() []catalog.Options {
	return s.catalogs
}

// Lookup returns the options of the named catalog.
func (s *Service) Lookup(name string) (catalog.Options, error) {
	for _, c := range s.catalogs {
		if c.Name == name {
			return c, nil
		}
	}
	return catalog.Options{}, fmt.Errorf("%q: %w", name, apperr.ErrUnknownCatalog)
}

// Rebuild builds one catalog, refreshes the index and notifies listeners.
// cb, if non-nil, receives per-file events.
func (s *Service) Rebuild(ctx context.Context, name string, cb catalog.EventFunc) (*models.Result, error) {
	opts, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lock != nil {
		if _, err := s.lock.TryLockContext(ctx, lockRetry); err != nil {
			return nil, fmt.Errorf("catalogservice: acquire build lock: %w", err)
		}
		defer s.lock.Unlock() //nolint:errcheck
	}

	res, err := s.builder.Build(ctx, opts, cb)
	if err != nil {
		s.notify(name, 0, err)
		return nil, err
	}

	if s.db != nil {
		data, readErr := s.store.Read(opts.Output)
		if readErr != nil {
			return nil, fmt.Errorf("catalogservice: reread %s: %w", opts.Output, readErr)
		}
		row := index.CatalogRow{
			Name:     name,
			Output:   opts.Output,
			Checksum: checksum.Sum(data),
			Seen:     res.Seen,
			Accepted: res.Accepted(),
		}
		if idxErr := s.db.ReplaceCatalog(row, res.Records, opts.Schema.PathKey); idxErr != nil {
			// The JSON catalog is already in place; a stale index only affects search.
			s.logger.Warn("catalogservice: index update failed",
				slog.String("catalog", name),
				slog.String("error", idxErr.Error()))
		}
	}

	s.notify(name, res.Accepted(), nil)
	return res, nil
}

// RebuildAll builds every catalog in order. A failing catalog does not stop
// the others; all failures are joined into the returned error.
func (s *Service) RebuildAll(ctx context.Context) ([]*models.Result, error) {
	var (
		out  []*models.Result
		errs []error
	)
	for _, c := range s.catalogs {
		res, err := s.Rebuild(ctx, c.Name, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		out = append(out, res)
	}
	if err := s.pruneIndex(); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// pruneIndex drops indexed catalogs that are no longer configured.
func (s *Service) pruneIndex() error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.Catalogs()
	if err != nil {
		return fmt.Errorf("catalogservice: list indexed catalogs: %w", err)
	}
	for _, row := range rows {
		if _, err := s.Lookup(row.Name); err == nil {
			continue
		}
		if err := s.db.DeleteCatalog(row.Name); err != nil {
			return fmt.Errorf("catalogservice: prune %s: %w", row.Name, err)
		}
		s.logger.Info("catalogservice: pruned index", slog.String("catalog", row.Name))
	}
	return nil
}

// Read returns the current catalog file and its checksum.
func (s *Service) Read(name string) ([]byte, string, error) {
	opts, err := s.Lookup(name)
	if err != nil {
		return nil, "", err
	}
	data, err := s.store.Read(opts.Output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperr.ErrNotFound
		}
		return nil, "", err
	}
	return data, checksum.Sum(data), nil
}

// Records decodes the current catalog file.
func (s *Service) Records(name string) ([]models.Record, error) {
	data, _, err := s.Read(name)
	if err != nil {
		return nil, err
	}
	return catalog.Decode(data)
}

// Facets returns the distinct non-empty values of one schema field across the
// current catalog, sorted. It feeds filter lists such as the subject picker of
// the exams page.
func (s *Service) Facets(name, key string) ([]string, error) {
	opts, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	known := false
	for _, f := range opts.Schema.Fields {
		if f.Key == key {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("%s: %q: %w", name, key, apperr.ErrUnknownField)
	}

	records, err := s.Records(name)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	out := []string{}
	for _, rec := range records {
		v, ok := rec.Get(key)
		if !ok || v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Summaries describes every configured catalog. Build counts come from the
// index when one is attached, otherwise from the catalog file.
func (s *Service) Summaries() ([]Summary, error) {
	out := make([]Summary, 0, len(s.catalogs))
	for _, c := range s.catalogs {
		sum := Summary{Name: c.Name, SourceDir: c.SourceDir, Output: c.Output}
		if s.db != nil {
			row, err := s.db.Catalog(c.Name)
			switch {
			case err == nil:
				sum.Checksum = row.Checksum
				sum.Seen = row.Seen
				sum.Accepted = row.Accepted
				builtAt := row.BuiltAt
				sum.BuiltAt = &builtAt
				out = append(out, sum)
				continue
			case !errors.Is(err, apperr.ErrNotFound):
				return nil, err
			}
		}
		data, cs, err := s.Read(c.Name)
		switch {
		case err == nil:
			records, decErr := catalog.Decode(data)
			if decErr != nil {
				return nil, decErr
			}
			sum.Checksum = cs
			sum.Accepted = len(records)
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Search queries the index. An empty catalog searches all catalogs.
func (s *Service) Search(_ context.Context, query, catalogName string, limit int) ([]index.SearchResult, error) {
	if s.db == nil {
		return nil, ErrIndexDisabled
	}
	if catalogName != "" {
		if _, err := s.Lookup(catalogName); err != nil {
			return nil, err
		}
	}
	results, err := s.db.Search(query, catalogName, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	return results, nil
}

// Upload validates filename against the catalog layout, stores r in the
// source directory and rebuilds the catalog. An existing file of the same
// name is never replaced; rename or delete it first.
func (s *Service) Upload(ctx context.Context, name, filename string, r io.Reader) (*Upload, error) {
	opts, err := s.Lookup(name)
	if err != nil {
		return nil, err
	}
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) || strings.HasPrefix(filename, ".") {
		return nil, fmt.Errorf("%q: %w", filename, apperr.ErrInvalidName)
	}
	if !opts.Schema.Match(filename) {
		return nil, fmt.Errorf("%q: extension must be %s: %w", filename, opts.Schema.Extension, apperr.ErrInvalidName)
	}
	rec, err := opts.Schema.Parse(filename, prefixOf(opts))
	if err != nil {
		return nil, err
	}

	rel := path.Join(filepath.ToSlash(opts.SourceDir), filename)
	n, err := s.store.Create(rel, r)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", rel, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("catalogservice: store %s: %w", rel, err)
	}
	s.logger.Info("catalogservice: stored upload",
		slog.String("catalog", name),
		slog.String("file", rel),
		slog.Int64("size", n))

	res, err := s.Rebuild(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return &Upload{Catalog: name, Path: rel, Size: n, Record: rec, Result: res}, nil
}

// Watch rebuilds catalogs when their source directories under root change,
// until ctx is cancelled.
func (s *Service) Watch(ctx context.Context, root string, debounce time.Duration) error {
	targets := make([]catalog.WatchTarget, 0, len(s.catalogs))
	for _, c := range s.catalogs {
		targets = append(targets, catalog.WatchTarget{
			Name:   c.Name,
			Dir:    filepath.Join(root, c.SourceDir),
			Schema: c.Schema,
		})
	}
	return catalog.Watch(ctx, targets, debounce, s.logger, func(ctx context.Context, name string) error {
		_, err := s.Rebuild(ctx, name, nil)
		return err
	})
}

func (s *Service) notify(name string, accepted int, err error) {
	if s.notifier != nil {
		s.notifier.PublishCatalogEvent(name, accepted, err)
	}
}

func prefixOf(opts catalog.Options) string {
	if opts.PathPrefix != "" {
		return opts.PathPrefix
	}
	return opts.SourceDir
}
