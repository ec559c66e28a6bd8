// Package catalog builds JSON catalogs from directories of named PDF files.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/models"
	"github.com/starford/unirepo/internal/schema"
	"github.com/starford/unirepo/internal/storage"
)

// Options selects what one build reads and writes. Paths are relative to the
// storage root.
type Options struct {
	Name      string
	SourceDir string
	Output    string
	// PathPrefix is joined with each file name for the record path. Empty
	// means SourceDir.
	PathPrefix string
	// CreateMissing creates SourceDir instead of failing when it is absent.
	CreateMissing bool
	Schema        schema.Schema
}

// Event kinds reported to an EventFunc.
const (
	EventAccepted = "accepted"
	EventRejected = "rejected"
)

// Event describes the outcome for a single PDF.
type Event struct {
	Kind      string
	Name      string
	Record    models.Record
	Rejection models.Rejection
}

// EventFunc is called once per PDF, in enumeration order.
type EventFunc func(Event)

// Builder runs the enumerate → filter → parse → collect → serialize pipeline.
type Builder struct {
	store  storage.Provider
	logger *slog.Logger
}

// NewBuilder creates a builder over store.
func NewBuilder(store storage.Provider, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, logger: logger}
}

// Build scans opts.SourceDir and replaces opts.Output with the catalog.
// A missing source directory returns apperr.ErrSourceMissing and leaves the
// output untouched. Malformed names are reported through cb and skipped.
func (b *Builder) Build(ctx context.Context, opts Options, cb EventFunc) (*models.Result, error) {
	res, err := b.Scan(ctx, opts, cb)
	if err != nil {
		return nil, err
	}

	data, err := Encode(res.Records)
	if err != nil {
		return nil, fmt.Errorf("catalog: encode %s: %w", opts.Name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.store.Write(opts.Output, data); err != nil {
		return nil, fmt.Errorf("catalog: write %s: %w", opts.Output, err)
	}

	b.logger.Info("catalog: written",
		slog.String("catalog", opts.Name),
		slog.String("output", opts.Output),
		slog.Int("seen", res.Seen),
		slog.Int("accepted", res.Accepted()))
	return res, nil
}

// Scan collects records without writing the output file.
func (b *Builder) Scan(ctx context.Context, opts Options, cb EventFunc) (*models.Result, error) {
	ok, err := b.store.Exists(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if !ok {
		if !opts.CreateMissing {
			return nil, fmt.Errorf("catalog: %s: %w", opts.SourceDir, apperr.ErrSourceMissing)
		}
		if err := b.store.EnsureDir(opts.SourceDir); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		b.logger.Info("catalog: created source dir", slog.String("dir", opts.SourceDir))
	}

	entries, err := b.store.Entries(opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	prefix := opts.PathPrefix
	if prefix == "" {
		prefix = opts.SourceDir
	}

	res := &models.Result{
		Catalog:    opts.Name,
		Output:     opts.Output,
		Records:    []models.Record{},
		Rejections: []models.Rejection{},
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.Dir || !opts.Schema.Match(e.Name) {
			continue
		}
		res.Seen++

		rec, err := opts.Schema.Parse(e.Name, prefix)
		if err != nil {
			var ne *schema.NameError
			if !errors.As(err, &ne) {
				return nil, fmt.Errorf("catalog: parse %s: %w", e.Name, err)
			}
			rej := ne.Rejection()
			res.Rejections = append(res.Rejections, rej)
			b.logger.Info("catalog: rejected file name",
				slog.String("catalog", opts.Name),
				slog.String("file", e.Name),
				slog.Int("segments", rej.Segments),
				slog.Int("want", rej.Want))
			if cb != nil {
				cb(Event{Kind: EventRejected, Name: e.Name, Rejection: rej})
			}
			continue
		}

		res.Records = append(res.Records, rec)
		b.logger.Debug("catalog: accepted", slog.String("catalog", opts.Name), slog.String("file", e.Name))
		if cb != nil {
			cb(Event{Kind: EventAccepted, Name: e.Name, Record: rec})
		}
	}
	return res, nil
}

// Encode renders records as an indented JSON array. Non-ASCII and HTML
// characters are written literally and an empty catalog is "[]".
func Encode(records []models.Record) ([]byte, error) {
	if records == nil {
		records = []models.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a catalog file produced by Encode.
func Decode(data []byte) ([]models.Record, error) {
	var out []models.Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if out == nil {
		out = []models.Record{}
	}
	return out, nil
}
