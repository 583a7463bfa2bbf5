package db

import (
	"fmt"
	"strings"
)

// Filter accumulates AND-ed WHERE fragments with positional arguments.
// Fragments use %d where the next $n placeholder belongs.
type Filter struct {
	clauses []string
	args    []any
}

// Eq adds "column = $n".
func (f *Filter) Eq(column string, value any) {
	f.Add(column+" = $%d", value)
}

// Add appends a fragment containing exactly one %d placeholder.
func (f *Filter) Add(fragment string, value any) {
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf(fragment, len(f.args)))
}

// AddRaw appends a fragment that takes no arguments.
func (f *Filter) AddRaw(fragment string) {
	f.clauses = append(f.clauses, fragment)
}

// Where renders " WHERE ..." or an empty string.
func (f *Filter) Where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// Args returns the collected arguments.
func (f *Filter) Args() []any {
	return f.args
}

// Page renders LIMIT/OFFSET placeholders after the filter arguments and
// returns the full argument list.
func (f *Filter) Page(limit, offset int) (string, []any) {
	n := len(f.args)
	args := append(append([]any{}, f.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}
