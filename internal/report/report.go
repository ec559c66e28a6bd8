// Package report prints build progress and summaries for the operator console.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"

	"github.com/starford/unirepo/internal/catalog"
	"github.com/starford/unirepo/internal/index"
	"github.com/starford/unirepo/internal/models"
)

const rule = "========================================"

// Printer writes human-readable build output. It is not safe for concurrent use.
type Printer struct {
	w     io.Writer
	quiet bool
}

// New returns a Printer writing to w. A quiet printer only prints summaries.
func New(w io.Writer, quiet bool) *Printer {
	return &Printer{w: w, quiet: quiet}
}

// Start announces the scan of a catalog.
func (p *Printer) Start(name, dir string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "--- %s ---\n", strings.ToUpper(name))
	fmt.Fprintf(p.w, "Lendo pasta '%s'...\n", dir)
}

// EventFunc returns a callback for catalog.Builder that prints one line per
// PDF. example is shown to explain rejected names. accepted is the line for
// an accepted PDF, with {key} replaced by record values; empty prints the
// first field.
func (p *Printer) EventFunc(example, accepted string) catalog.EventFunc {
	return func(ev catalog.Event) {
		if p.quiet {
			return
		}
		switch ev.Kind {
		case catalog.EventAccepted:
			if accepted == "" {
				fmt.Fprintf(p.w, "✅ SUCESSO: %s adicionado.\n", headline(ev.Record, ev.Name))
				return
			}
			fmt.Fprintln(p.w, expand(accepted, ev.Record))
		case catalog.EventRejected:
			fmt.Fprintf(p.w, "❌ ERRO NO NOME: '%s'\n", ev.Name)
			fmt.Fprintf(p.w, "   -> O nome precisa ter %d partes separadas por underline (_).\n", ev.Rejection.Want)
			if example != "" {
				fmt.Fprintf(p.w, "   -> Exemplo correto: %s\n", example)
			}
		}
	}
}

// Summary prints the totals of one build. label names the accepted records,
// e.g. "Provas cadastradas no site".
func (p *Printer) Summary(res *models.Result, label string) {
	if label == "" {
		label = "Registros cadastrados no site"
	}
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, rule)
	fmt.Fprintln(p.w, "RESUMO FINAL:")
	fmt.Fprintf(p.w, "- Arquivos PDF na pasta: %d\n", res.Seen)
	fmt.Fprintf(p.w, "- %s: %d\n", label, res.Accepted())
	fmt.Fprintln(p.w, rule)
	if res.Accepted() == 0 && res.Seen > 0 {
		fmt.Fprintln(p.w, "⚠️  AVISO: Nenhum PDF foi aceito. Verifique os nomes dos arquivos (use _ para separar).")
	}
}

// Fatal prints an error that stopped a catalog build.
func (p *Printer) Fatal(name string, err error) {
	fmt.Fprintf(p.w, "ERRO CRÍTICO (%s): %v\n", name, err)
}

// headline is the first value of the record, falling back to the file name.
func headline(rec models.Record, name string) string {
	if len(rec.Pairs) > 0 && rec.Pairs[0].Value != "" {
		return rec.Pairs[0].Value
	}
	return name
}

// expand replaces each {key} in tmpl with the record value. Unknown keys are
// left as written.
func expand(tmpl string, rec models.Record) string {
	oldnew := make([]string, 0, 2*len(rec.Pairs))
	for _, p := range rec.Pairs {
		oldnew = append(oldnew, "{"+p.Key+"}", p.Value)
	}
	return strings.NewReplacer(oldnew...).Replace(tmpl)
}

// Results prints search hits, one line each, or as a table when asTable is
// set.
func (p *Printer) Results(results []index.SearchResult, asTable bool) {
	if len(results) == 0 {
		fmt.Fprintln(p.w, "Nenhum resultado.")
		return
	}
	if !asTable {
		for _, r := range results {
			fmt.Fprintf(p.w, "[%s] %s\n", r.Catalog, fields(r.Record, "  "))
		}
		return
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Catálogo", "Registro"})
	for _, r := range results {
		tw.AppendRow(table.Row{r.Catalog, fields(r.Record, "\n")})
	}
	fmt.Fprintln(p.w, tw.Render())
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func fields(rec models.Record, sep string) string {
	parts := make([]string, 0, len(rec.Pairs))
	for _, p := range rec.Pairs {
		parts = append(parts, p.Key+"="+p.Value)
	}
	return strings.Join(parts, sep)
}
