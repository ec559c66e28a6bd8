package index

import "strings"

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern matches s anywhere in a column. Wildcards in s are literal;
// the statement must declare ESCAPE '\'.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// ftsQuery quotes every whitespace separated term of a folded query as an
// FTS5 string, so operators and punctuation ("Joao-Silva", "c++") are
// matched as text. Terms are ANDed.
func ftsQuery(query string) string {
	terms := strings.Fields(fold(query))
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
