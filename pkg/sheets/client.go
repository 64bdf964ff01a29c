// Package sheets provides a minimal Google Sheets v4 REST client covering
// value reads, writes, appends, and spreadsheet creation.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Client defines the Sheets operations used by this application.
type Client interface {
	GetValues(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
	UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]string) error
	AppendValues(ctx context.Context, spreadsheetID, rng string, values [][]string) error
	ClearValues(ctx context.Context, spreadsheetID, rng string) error
	CreateSpreadsheet(ctx context.Context, title string) (*Spreadsheet, error)
	BoldHeaderRow(ctx context.Context, spreadsheetID string, sheetID int64) error
}

// Spreadsheet describes a created spreadsheet.
type Spreadsheet struct {
	SpreadsheetID  string  `json:"spreadsheetId"`
	SpreadsheetURL string  `json:"spreadsheetUrl"`
	Sheets         []Sheet `json:"sheets"`
}

// Sheet is one tab of a spreadsheet.
type Sheet struct {
	Properties SheetProperties `json:"properties"`
}

// SheetProperties identifies a tab.
type SheetProperties struct {
	SheetID int64  `json:"sheetId"`
	Title   string `json:"title"`
}

// APIError is a non-2xx response from the Sheets or token endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets: status %d: %s", e.StatusCode, e.Message)
}

// HTTPStatusCode returns the HTTP status of the failed call.
func (e *APIError) HTTPStatusCode() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	tokens  TokenSource
	baseURL string
	http    *http.Client
}

// NewClient creates a Sheets client authenticated by tokens.
func NewClient(tokens TokenSource, opts ...Option) Client {
	c := &httpClient{
		tokens:  tokens,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type valueRange struct {
	Range          string  `json:"range,omitempty"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

func (c *httpClient) GetValues(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	var vr valueRange
	if err := c.do(ctx, http.MethodGet, c.valuesURL(spreadsheetID, rng, ""), nil, &vr); err != nil {
		return nil, wrapf(err, "sheets: get values %s", rng)
	}
	out := make([][]string, len(vr.Values))
	for i, row := range vr.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		out[i] = cells
	}
	return out, nil
}

func (c *httpClient) UpdateValues(ctx context.Context, spreadsheetID, rng string, values [][]string) error {
	u := c.valuesURL(spreadsheetID, rng, "") + "?valueInputOption=RAW"
	body := valueRange{Range: rng, MajorDimension: "ROWS", Values: toAny(values)}
	if err := c.do(ctx, http.MethodPut, u, body, nil); err != nil {
		return wrapf(err, "sheets: update values %s", rng)
	}
	return nil
}

func (c *httpClient) AppendValues(ctx context.Context, spreadsheetID, rng string, values [][]string) error {
	u := c.valuesURL(spreadsheetID, rng, ":append") + "?valueInputOption=RAW&insertDataOption=INSERT_ROWS"
	body := valueRange{Range: rng, MajorDimension: "ROWS", Values: toAny(values)}
	if err := c.do(ctx, http.MethodPost, u, body, nil); err != nil {
		return wrapf(err, "sheets: append values %s", rng)
	}
	return nil
}

func (c *httpClient) ClearValues(ctx context.Context, spreadsheetID, rng string) error {
	if err := c.do(ctx, http.MethodPost, c.valuesURL(spreadsheetID, rng, ":clear"), struct{}{}, nil); err != nil {
		return wrapf(err, "sheets: clear values %s", rng)
	}
	return nil
}

func (c *httpClient) CreateSpreadsheet(ctx context.Context, title string) (*Spreadsheet, error) {
	body := map[string]any{"properties": map[string]string{"title": title}}
	var ss Spreadsheet
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/v4/spreadsheets", body, &ss); err != nil {
		return nil, wrapf(err, "sheets: create spreadsheet")
	}
	return &ss, nil
}

func (c *httpClient) BoldHeaderRow(ctx context.Context, spreadsheetID string, sheetID int64) error {
	body := map[string]any{
		"requests": []any{
			map[string]any{
				"repeatCell": map[string]any{
					"range": map[string]any{
						"sheetId":       sheetID,
						"startRowIndex": 0,
						"endRowIndex":   1,
					},
					"cell": map[string]any{
						"userEnteredFormat": map[string]any{
							"textFormat": map[string]any{"bold": true},
						},
					},
					"fields": "userEnteredFormat.textFormat.bold",
				},
			},
		},
	}
	u := c.baseURL + "/v4/spreadsheets/" + url.PathEscape(spreadsheetID) + ":batchUpdate"
	if err := c.do(ctx, http.MethodPost, u, body, nil); err != nil {
		return wrapf(err, "sheets: format header")
	}
	return nil
}

func (c *httpClient) valuesURL(spreadsheetID, rng, suffix string) string {
	return c.baseURL + "/v4/spreadsheets/" + url.PathEscape(spreadsheetID) + "/values/" + url.PathEscape(rng) + suffix
}

func (c *httpClient) do(ctx context.Context, method, u string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if in != nil {
		b, mErr := json.Marshal(in)
		if mErr != nil {
			return eris.Wrap(mErr, "marshal request")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(body))
}

// wrapf annotates err but returns *APIError values as-is so callers can
// classify them by status.
func wrapf(err error, format string, args ...any) error {
	if apiErr, ok := err.(*APIError); ok {
		return apiErr
	}
	return eris.Wrapf(err, format, args...)
}

func toAny(values [][]string) [][]any {
	out := make([][]any, len(values))
	for i, row := range values {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}
