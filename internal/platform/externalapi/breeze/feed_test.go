package breeze

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	accountentity "breeze_backend/internal/feature/accounts/domain/entity"
	"breeze_backend/internal/feature/stream/usecase"
	"breeze_backend/internal/shared/markethours"
)

func testBreezeAccount() *accountentity.BreezeAccount {
	return &accountentity.BreezeAccount{
		ID:           1,
		UserID:       1,
		Name:         "primary",
		APIKey:       "test-app-key",
		APISecret:    "test-secret",
		SessionToken: "test-session-token",
		IsActive:     true,
	}
}

func newTestFeed(t *testing.T, server *httptest.Server) *Feed {
	t.Helper()

	cfg := Config{
		BaseURL: server.URL,
		Timeout: 10 * time.Second,
	}
	factory := NewFactory(cfg, server.Client(), markethours.NSE().Loc)
	return factory.NewFeed(testBreezeAccount()).(*Feed)
}

func TestNewFactory(t *testing.T) {
	t.Parallel()

	cfg := Config{
		BaseURL:   "https://api.test.com",
		StreamURL: "wss://stream.test.com",
		Timeout:   10 * time.Second,
	}
	client := &http.Client{}

	factory := NewFactory(cfg, client, markethours.NSE().Loc)

	if factory == nil {
		t.Fatal("expected non-nil factory")
	}
	if factory.cfg.BaseURL != cfg.BaseURL {
		t.Errorf("expected base URL %q, got %q", cfg.BaseURL, factory.cfg.BaseURL)
	}
	if factory.limiter == nil {
		t.Error("expected a shared rate limiter")
	}
}

func TestFeed_HistoricalBars_Success(t *testing.T) {
	t.Parallel()

	loc := markethours.NSE().Loc
	from := time.Date(2024, 3, 4, 3, 45, 0, 0, time.UTC)
	to := from.Add(48 * time.Hour)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request parameters
		if r.URL.Query().Get("interval") != "1minute" {
			t.Errorf("expected interval 1minute, got %s", r.URL.Query().Get("interval"))
		}
		if r.URL.Query().Get("from_date") != "2024-03-04T03:45:00.000Z" {
			t.Errorf("expected from_date 2024-03-04T03:45:00.000Z, got %s", r.URL.Query().Get("from_date"))
		}
		if r.URL.Query().Get("to_date") != "2024-03-06T03:45:00.000Z" {
			t.Errorf("expected to_date 2024-03-06T03:45:00.000Z, got %s", r.URL.Query().Get("to_date"))
		}
		if r.URL.Query().Get("stock_code") != "RELIANCE" {
			t.Errorf("expected stock_code RELIANCE, got %s", r.URL.Query().Get("stock_code"))
		}
		if r.URL.Query().Get("exchange_code") != "NSE" {
			t.Errorf("expected exchange_code NSE, got %s", r.URL.Query().Get("exchange_code"))
		}
		if r.URL.Query().Has("product_type") {
			t.Error("cash request must not carry product_type")
		}

		// Verify checksum authentication headers
		if r.Header.Get("X-AppKey") != "test-app-key" {
			t.Errorf("expected X-AppKey test-app-key, got %s", r.Header.Get("X-AppKey"))
		}
		if r.Header.Get("X-SessionToken") != "test-session-token" {
			t.Errorf("expected X-SessionToken test-session-token, got %s", r.Header.Get("X-SessionToken"))
		}
		ts := r.Header.Get("X-Timestamp")
		if ts == "" {
			t.Error("expected X-Timestamp header")
		}
		sum := sha256.Sum256([]byte(ts + "{}" + "test-secret"))
		want := "token " + hex.EncodeToString(sum[:])
		if r.Header.Get("X-Checksum") != want {
			t.Errorf("expected checksum %q, got %q", want, r.Header.Get("X-Checksum"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"Status": 200,
			"Success": [
				{
					"datetime": "2024-03-04 10:00:00",
					"open": "2900.50",
					"high": "2905.00",
					"low": "2899.25",
					"close": "2903.10",
					"volume": "12500"
				},
				{
					"datetime": "2024-03-04 10:01:00",
					"open": "2903.10",
					"high": "2904.00",
					"low": "2901.00",
					"close": "2902.00",
					"volume": ""
				}
			]
		}`))
	}))
	defer server.Close()

	feed := newTestFeed(t, server)

	bars, err := feed.HistoricalBars(context.Background(), usecase.HistoricalRequest{
		Interval:     "1minute",
		From:         from,
		To:           to,
		StockCode:    "RELIANCE",
		ExchangeCode: "NSE",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	wantTime := time.Date(2024, 3, 4, 10, 0, 0, 0, loc)
	if !bars[0].Time.Equal(wantTime) {
		t.Errorf("expected time %v, got %v", wantTime, bars[0].Time)
	}
	if bars[0].Open != 2900.50 {
		t.Errorf("expected open 2900.50, got %f", bars[0].Open)
	}
	if bars[0].Close != 2903.10 {
		t.Errorf("expected close 2903.10, got %f", bars[0].Close)
	}
	if bars[0].Volume != 12500 {
		t.Errorf("expected volume 12500, got %f", bars[0].Volume)
	}
	// Index bars omit volume
	if bars[1].Volume != 0 {
		t.Errorf("expected zero volume, got %f", bars[1].Volume)
	}
}

func TestFeed_HistoricalBars_SkipsMalformedBars(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Status": 200,
			"Success": [
				{
					"datetime": "2024-03-04 10:00:00",
					"open": "2900.50",
					"high": "2905.00",
					"low": "2899.25",
					"close": "2903.10",
					"volume": "12500"
				},
				{
					"datetime": "not a timestamp",
					"open": "2903.10",
					"high": "2904.00",
					"low": "2901.00",
					"close": "2902.00",
					"volume": "100"
				},
				{
					"datetime": "2024-03-04 10:02:00",
					"open": "n/a",
					"high": "2904.00",
					"low": "2901.00",
					"close": "2902.00",
					"volume": "100"
				},
				{
					"datetime": "2024-03-04 10:03:00",
					"open": "2902.00",
					"high": "2903.50",
					"low": "2901.50",
					"close": "2903.00",
					"volume": "8000"
				}
			]
		}`))
	}))
	defer server.Close()

	feed := newTestFeed(t, server)

	bars, err := feed.HistoricalBars(context.Background(), usecase.HistoricalRequest{
		Interval:     "1minute",
		From:         time.Now().Add(-time.Hour),
		To:           time.Now(),
		StockCode:    "RELIANCE",
		ExchangeCode: "NSE",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the two well-formed bars survive.
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if bars[0].Open != 2900.50 {
		t.Errorf("expected open 2900.50, got %f", bars[0].Open)
	}
	if bars[1].Close != 2903.00 {
		t.Errorf("expected close 2903.00, got %f", bars[1].Close)
	}
}

func TestFeed_HistoricalBars_DerivativeParams(t *testing.T) {
	t.Parallel()

	expiry := time.Date(2024, 3, 28, 0, 0, 0, 0, time.UTC)
	strike := 2900.0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("product_type") != "options" {
			t.Errorf("expected product_type options, got %s", r.URL.Query().Get("product_type"))
		}
		if r.URL.Query().Get("expiry_date") != "2024-03-28T00:00:00.000Z" {
			t.Errorf("expected expiry_date 2024-03-28T00:00:00.000Z, got %s", r.URL.Query().Get("expiry_date"))
		}
		if r.URL.Query().Get("right") != "call" {
			t.Errorf("expected right call, got %s", r.URL.Query().Get("right"))
		}
		if r.URL.Query().Get("strike_price") != "2900" {
			t.Errorf("expected strike_price 2900, got %s", r.URL.Query().Get("strike_price"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Status": 200, "Success": []}`))
	}))
	defer server.Close()

	feed := newTestFeed(t, server)

	bars, err := feed.HistoricalBars(context.Background(), usecase.HistoricalRequest{
		Interval:     "1minute",
		From:         time.Now().Add(-time.Hour),
		To:           time.Now(),
		StockCode:    "RELIANCE",
		ExchangeCode: "NFO",
		ProductType:  "options",
		Expiry:       &expiry,
		Right:        "call",
		StrikePrice:  &strike,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("expected no bars, got %d", len(bars))
	}
}

func TestFeed_HistoricalBars_HTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		statusCode int
	}{
		{"bad request", http.StatusBadRequest},
		{"unauthorized", http.StatusUnauthorized},
		{"internal server error", http.StatusInternalServerError},
		{"service unavailable", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			feed := newTestFeed(t, server)

			_, err := feed.HistoricalBars(context.Background(), usecase.HistoricalRequest{
				Interval:     "1minute",
				From:         time.Now().Add(-time.Hour),
				To:           time.Now(),
				StockCode:    "RELIANCE",
				ExchangeCode: "NSE",
			})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), "historicalcharts") {
				t.Errorf("expected endpoint in error, got %v", err)
			}
		})
	}
}

func TestFeed_HistoricalBars_UpstreamError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		message        string
		wantCredential bool
	}{
		{"expired session", "Session key is expired", true},
		{"invalid token", "Invalid session token", true},
		{"rate limited", "Request limit exceeded", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"Status": 500, "Error": "` + tt.message + `", "Success": []}`))
			}))
			defer server.Close()

			feed := newTestFeed(t, server)

			_, err := feed.HistoricalBars(context.Background(), usecase.HistoricalRequest{
				Interval:     "1minute",
				From:         time.Now().Add(-time.Hour),
				To:           time.Now(),
				StockCode:    "RELIANCE",
				ExchangeCode: "NSE",
			})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if errors.Is(err, usecase.ErrCredentialExpired) != tt.wantCredential {
				t.Errorf("credential classification wrong for %q: %v", tt.message, err)
			}
		})
	}
}

func TestFeed_CheckLiveness_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/customerdetails") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Status": 200,
			"Success": {"session_token": "test-session-token", "idirect_user_name": "Test User"}
		}`))
	}))
	defer server.Close()

	feed := newTestFeed(t, server)

	if err := feed.CheckLiveness(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFeed_CheckLiveness_ExpiredSession(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Status": 500, "Error": "Session token has expired"}`))
	}))
	defer server.Close()

	feed := newTestFeed(t, server)

	err := feed.CheckLiveness(context.Background())
	if !errors.Is(err, usecase.ErrCredentialExpired) {
		t.Fatalf("expected ErrCredentialExpired, got %v", err)
	}
}

func TestIsCredentialError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		msg  string
		want bool
	}{
		{"Session key is expired", true},
		{"Invalid session token", true},
		{"Token expired, please login again", true},
		{"Invalid stock code", false},
		{"Request limit exceeded", false},
		{"session is healthy", false},
		{"", false},
	}

	for _, tt := range tests {
		tt := tt
		if got := isCredentialError(tt.msg); got != tt.want {
			t.Errorf("isCredentialError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
