package yandex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchReportParsesAggregateRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/json/v5/reports", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "true", r.Header.Get("skipReportHeader"))

		var body struct {
			Params struct {
				SelectionCriteria struct {
					DateFrom string
					DateTo   string
				}
				ReportType string
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2025-08-01", body.Params.SelectionCriteria.DateFrom)
		assert.Equal(t, "ACCOUNT_PERFORMANCE_REPORT", body.Params.ReportType)

		w.Write([]byte("123\t45678\t0.27\t1500.50\t9\n"))
	}))
	defer srv.Close()

	m, err := NewClient(srv.URL).FetchReport(context.Background(), "tok-123", DateRange{
		From: "2025-08-01T00:00:00Z",
		To:   "2025-08-31",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(123), m.Clicks)
	assert.Equal(t, int64(45678), m.Impressions)
	assert.InDelta(t, 0.27, m.Ctr, 1e-9)
	assert.InDelta(t, 1500.50, m.Cost, 1e-9)
	assert.Equal(t, int64(9), m.Conversions)
}

func TestFetchReportEmptyBodyMeansZeroActivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("\n"))
	}))
	defer srv.Close()

	m, err := NewClient(srv.URL).FetchReport(context.Background(), "tok", DateRange{From: "2025-08-01", To: "2025-08-02"})
	require.NoError(t, err)
	assert.Equal(t, &Metrics{}, m)
}

func TestFetchReportSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"error_code":53}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchReport(context.Background(), "tok", DateRange{From: "2025-08-01", To: "2025-08-02"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestFetchReportRejectsMalformedRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("only\ttwo\n"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchReport(context.Background(), "tok", DateRange{From: "2025-08-01", To: "2025-08-02"})
	assert.Error(t, err)
}

func TestFetchBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/live/v4/json/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"Accounts": []map[string]interface{}{
					{"Amount": 15000.0, "Currency": "RUB"},
				},
			},
		})
	}))
	defer srv.Close()

	b, err := NewClient(srv.URL).FetchBalance(context.Background(), "tok")
	require.NoError(t, err)
	assert.InDelta(t, 15000.0, b.Amount, 1e-9)
	assert.Equal(t, "RUB", b.Currency)
}

func TestFetchBalanceFailureIsIndependent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/live/v4/json/" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write([]byte("1\t2\t3\t4\t5\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)

	_, err := c.FetchBalance(context.Background(), "tok")
	assert.Error(t, err)

	m, err := c.FetchReport(context.Background(), "tok", DateRange{From: "2025-08-01", To: "2025-08-02"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Clicks)
}
