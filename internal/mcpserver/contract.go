package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/unirepo/internal/catalog"
)

const contractRules = `## Rules

1. Fields are separated by a single underscore (` + "`_`" + `). Underscores can
   not appear inside a field value.
2. Inside fields marked "hyphen → space", write spaces as hyphens
   (` + "`Calculo-I`" + ` becomes "Calculo I").
3. The extension must be the one listed for the catalog, in any case. Other
   files in the folder are ignored.
4. Names with fewer fields than required are rejected and left out of the
   catalog. Extra trailing fields are ignored.
5. The catalog is regenerated in full on every build. Renaming or deleting a
   PDF updates the catalog on the next build.
`

// FilenameContract renders the naming rules for every catalog as Markdown.
func FilenameContract(catalogs []catalog.Options) string {
	var b strings.Builder
	b.WriteString("# unirepo File Name Contract\n\n")
	b.WriteString("Every PDF placed in a catalog folder MUST be named after the layout of\n")
	b.WriteString("that catalog. The file name is the only source of metadata.\n\n")

	for _, c := range catalogs {
		writeCatalogContract(&b, c)
	}
	b.WriteString(contractRules)
	return b.String()
}

func writeCatalogContract(b *strings.Builder, c catalog.Options) {
	sc := c.Schema
	fmt.Fprintf(b, "## Catalog `%s`\n\n", c.Name)
	fmt.Fprintf(b, "- Folder: `%s/`\n", c.SourceDir)
	fmt.Fprintf(b, "- Output: `%s`\n", c.Output)

	fmt.Fprintf(b, "- Layout: `%s`\n", sc.Layout())
	fmt.Fprintf(b, "- Extension: `%s` (any case)\n", sc.Ext())
	fmt.Fprintf(b, "- Required fields: %d\n", sc.MinSegments)
	fmt.Fprintf(b, "- Example: `%s`\n\n", sc.ExampleName())

	b.WriteString("| Position | Key | Hyphen → space |\n")
	b.WriteString("|---|---|---|\n")
	for i, f := range sc.Fields {
		norm := "no"
		if f.Normalize {
			norm = "yes"
		}
		fmt.Fprintf(b, "| %d | `%s` | %s |\n", i+1, f.Key, norm)
	}
	fmt.Fprintf(b, "\nEach record also carries `%s`: the folder joined with the original file name.\n\n", sc.PathKey)
}
