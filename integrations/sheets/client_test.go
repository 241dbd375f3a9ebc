package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"runwayiq/config"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(context.Background(), config.SheetsConfig{ClientEmail: "svc@example.iam.gserviceaccount.com"})
	assert.ErrorIs(t, err, config.ErrIntegrationNotConfigured)
	assert.EqualError(t, err, "Google Sheets integration not configured")
}

func TestRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-1/values/"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"range": "Sheet1!A1:H3",
			"majorDimension": "ROWS",
			"values": [
				["Full Name", "Property URL", "LinkedIn URL", "Phone", "Email"],
				["Ann Lee", "", "", "555-0100", "ann@example.com"]
			]
		}`))
	}))
	defer srv.Close()

	c, err := newClient(context.Background(), "sheet-1", "",
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	assert.Equal(t, DefaultRange, c.readRange)

	rows, err := c.Rows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ann Lee", rows[1][0])
}

func TestRowsPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
	}))
	defer srv.Close()

	c, err := newClient(context.Background(), "sheet-1", "Leads!A:H",
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	_, err = c.Rows(context.Background())
	assert.ErrorContains(t, err, "read spreadsheet sheet-1")
}
