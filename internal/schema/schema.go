// Package schema describes catalog filename layouts and turns file names into records.
package schema

import (
	"fmt"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/unirepo/internal/apperr"
	"github.com/starford/unirepo/internal/models"
)

const (
	// Separator splits a file stem into fields.
	Separator = "_"
	// DefaultExtension is the only extension cataloged unless a schema overrides it.
	DefaultExtension = ".pdf"
	// DefaultPathKey is the record key holding the file path.
	DefaultPathKey = "arquivo"
)

// Field is one positional segment of a file name.
type Field struct {
	Key string `json:"key" yaml:"key"`
	// Normalize replaces hyphens with spaces in the segment value.
	Normalize bool `json:"normalize" yaml:"normalize"`
}

// Validate validates the field.
func (f Field) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Key, validation.Required),
	)
}

// Schema is the ordered field layout a file name must satisfy.
type Schema struct {
	Fields      []Field `json:"fields" yaml:"fields"`
	MinSegments int     `json:"min_segments" yaml:"min_segments"`
	PathKey     string  `json:"path_key" yaml:"path_key"`
	Extension   string  `json:"extension" yaml:"extension"`
	Example     string  `json:"example" yaml:"example"`
}

// Validate fills defaults and checks the schema is usable.
func (s *Schema) Validate() error {
	if s.MinSegments == 0 {
		s.MinSegments = len(s.Fields)
	}
	if s.PathKey == "" {
		s.PathKey = DefaultPathKey
	}
	if s.Extension == "" {
		s.Extension = DefaultExtension
	}
	if err := validation.ValidateStruct(s,
		validation.Field(&s.Fields, validation.Required),
		validation.Field(&s.MinSegments, validation.Min(len(s.Fields))),
		validation.Field(&s.Extension, validation.Required, validation.By(dotted)),
	); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.Fields)+1)
	seen[s.PathKey] = struct{}{}
	for _, f := range s.Fields {
		if _, dup := seen[f.Key]; dup {
			return fmt.Errorf("schema: duplicate key %q", f.Key)
		}
		seen[f.Key] = struct{}{}
	}
	return nil
}

func dotted(value any) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, ".") || strings.Contains(s[1:], ".") {
		return fmt.Errorf("must look like .ext")
	}
	return nil
}

// NameError reports a file name with too few segments.
type NameError struct {
	Name     string
	Segments int
	Want     int
}

func (e *NameError) Error() string {
	return fmt.Sprintf("%s: %d segments separated by %q, need %d", e.Name, e.Segments, Separator, e.Want)
}

func (e *NameError) Unwrap() error { return apperr.ErrInvalidName }

// Rejection converts the error into its catalog form.
func (e *NameError) Rejection() models.Rejection {
	return models.Rejection{Name: e.Name, Segments: e.Segments, Want: e.Want}
}

// Match reports whether name carries the schema extension, ignoring case.
func (s Schema) Match(name string) bool {
	ext := s.Ext()
	return len(name) >= len(ext) && strings.EqualFold(name[len(name)-len(ext):], ext)
}

// Parse builds a record from name. prefix is joined with name to form the
// path value. Names that fail Match are not checked here; callers filter first.
func (s Schema) Parse(name, prefix string) (models.Record, error) {
	stem := name
	if s.Match(name) {
		stem = name[:len(name)-len(s.Ext())]
	}
	parts := strings.Split(stem, Separator)
	want := s.MinSegments
	if want < len(s.Fields) {
		want = len(s.Fields)
	}
	if len(parts) < want {
		return models.Record{}, &NameError{Name: name, Segments: len(parts), Want: want}
	}

	rec := models.Record{Pairs: make([]models.Pair, 0, len(s.Fields)+1)}
	for i, f := range s.Fields {
		v := parts[i]
		if f.Normalize {
			v = strings.ReplaceAll(v, "-", " ")
		}
		rec.Set(f.Key, v)
	}
	rec.Set(s.pathKey(), joinPath(prefix, name))
	return rec, nil
}

// ExampleName returns a file name that satisfies the schema, for diagnostics.
func (s Schema) ExampleName() string {
	if s.Example != "" {
		return s.Example
	}
	return s.Layout()
}

// Layout renders the field keys as a file name pattern, e.g.
// Titulo_Autor_Tags.pdf.
func (s Schema) Layout() string {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		parts = append(parts, capitalize(f.Key))
	}
	return strings.Join(parts, Separator) + s.Ext()
}

// Ext returns the cataloged extension, DefaultExtension when unset.
func (s Schema) Ext() string {
	if s.Extension == "" {
		return DefaultExtension
	}
	return s.Extension
}

func (s Schema) pathKey() string {
	if s.PathKey == "" {
		return DefaultPathKey
	}
	return s.PathKey
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(strings.ReplaceAll(prefix, "\\", "/"), name)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Exams is the layout Materia_Professor_Tipo_Ano.pdf. The year is kept verbatim.
func Exams() Schema {
	return Schema{
		Fields: []Field{
			{Key: "materia", Normalize: true},
			{Key: "professor", Normalize: true},
			{Key: "tipo", Normalize: true},
			{Key: "ano", Normalize: false},
		},
		MinSegments: 4,
		PathKey:     DefaultPathKey,
		Extension:   DefaultExtension,
		Example:     "Materia_Professor_Prova_Ano.pdf",
	}
}

// Projects is the layout Titulo_Autor_Tags.pdf.
func Projects() Schema {
	return Schema{
		Fields: []Field{
			{Key: "titulo", Normalize: true},
			{Key: "autor", Normalize: true},
			{Key: "tags", Normalize: true},
		},
		MinSegments: 3,
		PathKey:     DefaultPathKey,
		Extension:   DefaultExtension,
		Example:     "Titulo_Autor_Tags.pdf",
	}
}
