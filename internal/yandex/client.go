package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client talks to the Yandex.Direct v5 reports API and the v4 live API
// for account balance. Single-attempt calls, no retry.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Metrics struct {
	Clicks      int64   `json:"clicks"`
	Impressions int64   `json:"impressions"`
	Ctr         float64 `json:"ctr"`
	Cost        float64 `json:"cost"`
	Conversions int64   `json:"conversions"`
}

type Balance struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// FetchReport pulls an account performance report for the date range.
// The API returns TSV; with headers and summary suppressed the first
// line is the aggregate metrics row.
func (c *Client) FetchReport(ctx context.Context, token string, dr DateRange) (*Metrics, error) {
	body := map[string]interface{}{
		"params": map[string]interface{}{
			"SelectionCriteria": map[string]string{
				"DateFrom": dateOnly(dr.From),
				"DateTo":   dateOnly(dr.To),
			},
			"FieldNames":    []string{"Clicks", "Impressions", "Ctr", "Cost", "Conversions"},
			"ReportName":    fmt.Sprintf("Report %d", time.Now().UnixMilli()),
			"ReportType":    "ACCOUNT_PERFORMANCE_REPORT",
			"DateRangeType": "CUSTOM_DATE",
			"Format":        "TSV",
			"IncludeVAT":    "YES",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/json/v5/reports", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", "ru")
	req.Header.Set("processingMode", "auto")
	req.Header.Set("returnMoneyInMicros", "false")
	req.Header.Set("skipReportHeader", "true")
	req.Header.Set("skipColumnHeader", "true")
	req.Header.Set("skipReportSummary", "true")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reports request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reports API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return parseReportTSV(string(raw))
}

// parseReportTSV reads the aggregate row. An empty report (no activity
// in the range) yields all zeroes.
func parseReportTSV(raw string) (*Metrics, error) {
	line, _, _ := strings.Cut(raw, "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return &Metrics{}, nil
	}

	fields := strings.Split(line, "\t")
	if len(fields) != 5 {
		return nil, fmt.Errorf("unexpected report row: %q", line)
	}

	var m Metrics
	var err error
	if m.Clicks, err = strconv.ParseInt(fields[0], 10, 64); err != nil {
		return nil, fmt.Errorf("bad Clicks value %q", fields[0])
	}
	if m.Impressions, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return nil, fmt.Errorf("bad Impressions value %q", fields[1])
	}
	if m.Ctr, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return nil, fmt.Errorf("bad Ctr value %q", fields[2])
	}
	if m.Cost, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return nil, fmt.Errorf("bad Cost value %q", fields[3])
	}
	if m.Conversions, err = strconv.ParseInt(fields[4], 10, 64); err != nil {
		return nil, fmt.Errorf("bad Conversions value %q", fields[4])
	}
	return &m, nil
}

// FetchBalance queries the v4 live API for the account balance. This is
// an independent call from the report: one failing must not take the
// other down.
func (c *Client) FetchBalance(ctx context.Context, token string) (*Balance, error) {
	body := map[string]interface{}{
		"method": "AccountManagement",
		"token":  token,
		"param":  map[string]interface{}{"Action": "Get"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/live/v4/json/", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("balance request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("balance API returned %d", resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			Accounts []struct {
				Amount   float64 `json:"Amount"`
				Currency string  `json:"Currency"`
			} `json:"Accounts"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode balance response: %w", err)
	}
	if len(parsed.Data.Accounts) == 0 {
		return nil, fmt.Errorf("balance response has no accounts")
	}
	acc := parsed.Data.Accounts[0]
	return &Balance{Amount: acc.Amount, Currency: acc.Currency}, nil
}

// Ping reports whether the API host answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/json/v5/reports", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func dateOnly(s string) string {
	if d, _, found := strings.Cut(s, "T"); found {
		return d
	}
	return s
}
