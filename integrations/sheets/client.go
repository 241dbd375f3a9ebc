// Package sheets reads lead rows from a Google spreadsheet using a service
// account.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/option"
	api "google.golang.org/api/sheets/v4"

	"runwayiq/config"
)

const DefaultRange = "Sheet1!A:H"

type Client struct {
	svc           *api.Service
	spreadsheetID string
	readRange     string
}

// NewClient authenticates with the service-account key from configuration
func NewClient(ctx context.Context, cfg config.SheetsConfig) (*Client, error) {
	if cfg.ClientEmail == "" || cfg.PrivateKey == "" || cfg.SpreadsheetID == "" {
		return nil, config.NotConfigured("Google Sheets")
	}
	jwtConfig := &jwt.Config{
		Email:      cfg.ClientEmail,
		PrivateKey: []byte(cfg.PrivateKey),
		Scopes:     []string{api.SpreadsheetsReadonlyScope},
		TokenURL:   google.JWTTokenURL,
	}
	return newClient(ctx, cfg.SpreadsheetID, cfg.Range, option.WithHTTPClient(jwtConfig.Client(ctx)))
}

func newClient(ctx context.Context, spreadsheetID, readRange string, opts ...option.ClientOption) (*Client, error) {
	svc, err := api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	if readRange == "" {
		readRange = DefaultRange
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

func (c *Client) SpreadsheetID() string { return c.spreadsheetID }

// Rows returns the raw cell values of the configured range, header included
func (c *Client) Rows(ctx context.Context) ([][]interface{}, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, c.readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	if resp.Values == nil {
		return [][]interface{}{}, nil
	}
	return resp.Values, nil
}
