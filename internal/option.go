package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	stdout  io.Writer
	stderr  io.Writer
	version string

	// build
	only      []string
	quiet     bool
	withIndex bool

	// search
	catalog string
	limit   int
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where console reports (stdout) and logs (stderr) go.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *application) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}

// WithOnly restricts a build to the named catalogs.
func WithOnly(names ...string) Option {
	return func(a *application) {
		a.only = append(a.only, names...)
	}
}

// WithQuiet suppresses per-file report lines; summaries are still printed.
func WithQuiet(quiet bool) Option {
	return func(a *application) {
		a.quiet = quiet
	}
}

// WithIndex forces the build command to refresh the search index.
func WithIndex(enabled bool) Option {
	return func(a *application) {
		a.withIndex = enabled
	}
}

// WithSearchScope restricts a search to one catalog and caps the result count.
func WithSearchScope(catalog string, limit int) Option {
	return func(a *application) {
		a.catalog = catalog
		a.limit = limit
	}
}
