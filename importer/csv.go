// Package importer turns CSV uploads and spreadsheet rows into leads.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"runwayiq/models"
	"runwayiq/utils"
)

var (
	ErrNoRows        = errors.New("no data rows")
	ErrMissingHeader = errors.New("missing required column")
)

const (
	colFullName    = "full name"
	colEmail       = "email"
	colPhone       = "phone"
	colCompany     = "company"
	colTitle       = "title"
	colLinkedInURL = "linkedin url"
	colCampaign    = "campaign"
	colStatus      = "status"
)

// LeadRow is one validated input row, ready to become a lead
type LeadRow struct {
	Row         int               `json:"row"`
	FullName    string            `json:"full_name"`
	Email       string            `json:"email"`
	Phone       string            `json:"phone"`
	Company     string            `json:"company"`
	Title       string            `json:"title"`
	LinkedInURL string            `json:"linkedin_url"`
	Campaign    string            `json:"campaign"`
	Status      models.LeadStatus `json:"status"`
	PropertyURL string            `json:"property_url,omitempty"`
	City        string            `json:"city,omitempty"`
	Owner       string            `json:"owner,omitempty"`
}

// ParseCSV reads a header row followed by lead rows. Rows that fail validation
// are reported as "Row N: ..." messages, where N counts the header as row 1.
func ParseCSV(r io.Reader) ([]LeadRow, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, ErrNoRows
	}
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CSV format: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colFullName, colEmail} {
		if _, ok := index[required]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingHeader, headerLabel(required))
		}
	}

	var (
		rows []LeadRow
		errs = []string{}
		n    int
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("invalid CSV format: %w", err)
		}
		if blank(record) {
			continue
		}

		rowNum := n + 2
		n++

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row, msg := validateRow(rowNum, LeadRow{
			FullName:    get(colFullName),
			Email:       get(colEmail),
			Phone:       get(colPhone),
			Company:     get(colCompany),
			Title:       get(colTitle),
			LinkedInURL: get(colLinkedInURL),
			Campaign:    get(colCampaign),
		}, get(colStatus))
		if msg != "" {
			errs = append(errs, msg)
			continue
		}
		rows = append(rows, row)
	}

	if n == 0 {
		return nil, nil, ErrNoRows
	}
	return rows, errs, nil
}

func validateRow(rowNum int, row LeadRow, status string) (LeadRow, string) {
	row.Row = rowNum
	if row.FullName == "" || row.Email == "" {
		return row, fmt.Sprintf("Row %d: Missing required fields (Full Name, Email)", rowNum)
	}
	if !utils.IsValidEmail(row.Email) {
		return row, fmt.Sprintf("Row %d: Invalid email format", rowNum)
	}
	row.Status = models.LeadStatusNew
	if status != "" {
		s, err := models.ParseLeadStatus(status)
		if err != nil {
			return row, fmt.Sprintf("Row %d: Invalid status %q", rowNum, status)
		}
		row.Status = s
	}
	return row, ""
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func headerLabel(col string) string {
	switch col {
	case colFullName:
		return "Full Name"
	case colEmail:
		return "Email"
	}
	return col
}
