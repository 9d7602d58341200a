// Package dialect names the supported SQL backends and their
// placeholder conventions for the storage adapter.
package dialect

import "strconv"

// Supported dialect names. They double as database/sql driver names.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Placeholder returns the dialect's bind placeholder for the n-th
// argument (1-based). Postgres numbers its placeholders; MySQL and
// SQLite use positional question marks.
func Placeholder(dialect string, n int) string {
	if dialect == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
