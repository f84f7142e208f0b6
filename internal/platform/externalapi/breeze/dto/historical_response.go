// Package dto defines data transfer objects for the Breeze API.
package dto

// HistoricalResponse represents the JSON response from the historicalcharts
// endpoint.
type HistoricalResponse struct {
	Status int             `json:"Status"`
	Error  string          `json:"Error,omitempty"`
	Bars   []HistoricalBar `json:"Success"`
}

// HistoricalBar is one raw bar row. All numeric fields arrive as strings.
type HistoricalBar struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}
