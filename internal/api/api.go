// Package api defines the shared HTTP request and response DTOs.
package api

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// TokenResponse carries an issued JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// SignupRequest is the user registration payload.
type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CandleResponse is one OHLCV bar.
type CandleResponse struct {
	Time   string  `json:"time"` // RFC 3339 in exchange time
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// CandlePageResponse is one page of resampled bars, newest first.
type CandlePageResponse struct {
	Candles  []CandleResponse `json:"candles"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// InstrumentResponse is one catalog entry from instrument search.
type InstrumentResponse struct {
	ID          uint     `json:"id"`
	StockToken  string   `json:"stock_token"`
	ShortName   string   `json:"short_name"`
	Series      string   `json:"series"`
	CompanyName string   `json:"company_name"`
	Exchange    string   `json:"exchange_code"`
	Expiry      *string  `json:"expiry,omitempty"`
	StrikePrice *float64 `json:"strike_price,omitempty"`
	OptionType  string   `json:"option_type,omitempty"`
}

// SubscriptionResponse is one subscribed instrument with its backfill state.
type SubscriptionResponse struct {
	ID            uint    `json:"id"`
	StockToken    string  `json:"stock_token"`
	ShortName     string  `json:"short_name"`
	CompanyName   string  `json:"company_name"`
	Exchange      string  `json:"exchange_code"`
	LoadingStatus string  `json:"loading_status"`
	Percentage    float64 `json:"percentage"`
}

// SubscribeRequest subscribes an instrument from the catalog.
type SubscribeRequest struct {
	InstrumentID  uint `json:"instrument_id" binding:"required"`
	DurationWeeks int  `json:"duration_weeks"`
}

// AccountRequest creates or updates upstream broker credentials.
type AccountRequest struct {
	Name         string `json:"name"`
	APIKey       string `json:"api_key" binding:"required"`
	APISecret    string `json:"api_secret" binding:"required"`
	SessionToken string `json:"session_token"`
	IsActive     bool   `json:"is_active"`
}

// AccountResponse is one stored broker account. Secrets are never echoed.
type AccountResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	IsActive    bool   `json:"is_active"`
	LastUpdated string `json:"last_updated"`
	HasSession  bool   `json:"has_session_token"`
}
