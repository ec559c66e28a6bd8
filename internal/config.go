package internal

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/unirepo/internal/catalog"
	"github.com/starford/unirepo/internal/schema"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Site     SiteConfig        `yaml:"site"`
	Index    IndexConfig       `yaml:"index"`
	Auth     AuthConfig        `yaml:"auth"`
	Watch    WatchConfig       `yaml:"watch"`
	Catalogs []CatalogConfig   `yaml:"catalogs"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if len(c.Catalogs) == 0 {
		return fmt.Errorf("catalogs: at least one catalog is required")
	}
	names := make(map[string]struct{}, len(c.Catalogs))
	for i := range c.Catalogs {
		cat := &c.Catalogs[i]
		if err := cat.Validate(); err != nil {
			return fmt.Errorf("catalogs[%d]: %w", i, err)
		}
		if _, dup := names[cat.Name]; dup {
			return fmt.Errorf("catalogs: duplicate name %q", cat.Name)
		}
		names[cat.Name] = struct{}{}
	}
	return nil
}

// Catalog returns the configuration of the named catalog.
func (c *Config) Catalog(name string) (*CatalogConfig, bool) {
	for i := range c.Catalogs {
		if c.Catalogs[i].Name == name {
			return &c.Catalogs[i], true
		}
	}
	return nil, false
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
	HTTP      HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatText, LogFormatJSON)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// NewLogger builds the slog logger described by the configuration.
func (c *ApplicationConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SiteConfig holds the directory the static site is served from. Catalog
// paths are relative to it.
type SiteConfig struct {
	Root string `yaml:"root"`
	// LockFile serializes builds across processes. Empty disables locking.
	LockFile string `yaml:"lock_file"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// IndexConfig holds the SQLite search index configuration.
//
// The build command only updates the index when Enabled is set; serve and
// mcp always open it.
type IndexConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for mutating HTTP routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// WatchConfig tunes the source directory watcher used by serve.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if c.Debounce == 0 {
		c.Debounce = catalog.DefaultDebounce
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Millisecond)),
	)
}

// CatalogConfig describes one catalog: where its PDFs live, where the JSON
// goes and how file names map to fields.
type CatalogConfig struct {
	Name string `yaml:"name"`
	// SummaryLabel names accepted records in the console summary.
	SummaryLabel string `yaml:"summary_label"`
	// AcceptedMessage is printed per accepted PDF; {key} expands to the
	// record value.
	AcceptedMessage string        `yaml:"accepted_message"`
	SourceDir       string        `yaml:"source_dir"`
	Output          string        `yaml:"output"`
	PathPrefix      string        `yaml:"path_prefix"`
	CreateMissing   bool          `yaml:"create_missing"`
	Schema          schema.Schema `yaml:"schema"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.SourceDir, validation.Required),
		validation.Field(&c.Output, validation.Required),
	); err != nil {
		return err
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("%s: schema: %w", c.Name, err)
	}
	return nil
}

// Options converts the configuration into builder options.
func (c *CatalogConfig) Options() catalog.Options {
	return catalog.Options{
		Name:          c.Name,
		SourceDir:     c.SourceDir,
		Output:        c.Output,
		PathPrefix:    c.PathPrefix,
		CreateMissing: c.CreateMissing,
		Schema:        c.Schema,
	}
}

// NewDefaultConfig returns a new Config with sensible default values. The two
// default catalogs reproduce the exam and project layouts of the site.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelWarn,
			LogFormat: LogFormatText,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Site: SiteConfig{
			Root:     ".",
			LockFile: ".unirepo/build.lock",
		},
		Index: IndexConfig{
			Path: ".unirepo/index.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Watch: WatchConfig{
			Debounce: catalog.DefaultDebounce,
		},
		Catalogs: []CatalogConfig{
			{
				Name:            "exams",
				SummaryLabel:    "Provas cadastradas no site",
				AcceptedMessage: "✅ SUCESSO: {materia} ({tipo}) adicionada.",
				SourceDir:       "arquivos",
				Output:          "dados.json",
				Schema:          schema.Exams(),
			},
			{
				Name:            "projects",
				SummaryLabel:    "Projetos cadastrados no site",
				AcceptedMessage: "[OK] Projeto: {titulo}",
				SourceDir:       "projetos",
				Output:          "projetos.json",
				CreateMissing:   true,
				Schema:          schema.Projects(),
			},
		},
	}
}
