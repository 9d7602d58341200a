// Package check walks a registration ledger and re-validates every
// configuration spec's field references. It backs the CI diagnostic
// command: a registration that drifted out of sync with its entity type
// (a field removed after the registration was written) is reported one
// line per problem instead of failing at first request.
package check

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/geoforge/terrane/registry"
)

// Report is the outcome of one validation pass.
type Report struct {
	Problems []string
}

// OK reports whether the pass found no problems.
func (r Report) OK() bool { return len(r.Problems) == 0 }

// WriteTo writes one line per problem.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, p := range r.Problems {
		n, err := fmt.Fprintln(w, p)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Run re-validates every registration in the ledger.
func Run(ledger *registry.Ledger) Report {
	var report Report
	for _, err := range ledger.Validate() {
		report.Problems = append(report.Problems, err.Error())
	}
	return report
}

// VerifyColumns checks every registered entity type against the live
// database: the type's table must exist and carry a column for id,
// visibility, and each declared field. The zero-row probe works across
// all supported dialects.
func VerifyColumns(ctx context.Context, db *sql.DB, ledger *registry.Ledger) Report {
	var report Report
	for _, rec := range ledger.Records() {
		rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 0", rec.Type.Name))
		if err != nil {
			report.Problems = append(report.Problems,
				fmt.Sprintf("%s: table probe failed: %v", rec.Type.Name, err))
			continue
		}
		columns, err := rows.Columns()
		rows.Close()
		if err != nil {
			report.Problems = append(report.Problems,
				fmt.Sprintf("%s: column listing failed: %v", rec.Type.Name, err))
			continue
		}
		present := make(map[string]bool, len(columns))
		for _, c := range columns {
			present[c] = true
		}
		for _, want := range []string{"id", "visibility"} {
			if !present[want] {
				report.Problems = append(report.Problems,
					fmt.Sprintf("%s: missing column %q", rec.Type.Name, want))
			}
		}
		for _, fd := range rec.Type.Fields {
			if !present[fd.Name] {
				report.Problems = append(report.Problems,
					fmt.Sprintf("%s: declared field %q has no column", rec.Type.Name, fd.Name))
			}
		}
	}
	return report
}
