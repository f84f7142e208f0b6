package dto

// StreamCommand is a subscribe/unsubscribe frame sent over the live socket.
type StreamCommand struct {
	Action     string `json:"action"` // "subscribe" or "unsubscribe"
	StockToken string `json:"stock_token"`
}

// TickMessage is one live trade frame read off the socket.
type TickMessage struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	LTQ    float64 `json:"ltq"`
	LTT    string  `json:"ltt"` // e.g. "Mon Jan 02 15:04:05 2006"
}
