package importer

import (
	"fmt"
	"strings"
)

// SheetRowsToLeads maps spreadsheet values in columns A:H (Full Name,
// Property URL, LinkedIn URL, Phone, Email, City, Status, Owner). The first
// row is a header. Rows without a name or email are skipped silently.
func SheetRowsToLeads(values [][]interface{}) ([]LeadRow, []string) {
	rows := []LeadRow{}
	errs := []string{}
	if len(values) < 2 {
		return rows, errs
	}

	for i, raw := range values[1:] {
		cell := func(col int) string {
			if col >= len(raw) || raw[col] == nil {
				return ""
			}
			return strings.TrimSpace(fmt.Sprint(raw[col]))
		}

		candidate := LeadRow{
			FullName:    cell(0),
			PropertyURL: cell(1),
			LinkedInURL: cell(2),
			Phone:       cell(3),
			Email:       cell(4),
			City:        cell(5),
			Owner:       cell(7),
		}
		if candidate.FullName == "" || candidate.Email == "" {
			continue
		}

		row, msg := validateRow(i+2, candidate, cell(6))
		if msg != "" {
			errs = append(errs, msg)
			continue
		}
		rows = append(rows, row)
	}
	return rows, errs
}
