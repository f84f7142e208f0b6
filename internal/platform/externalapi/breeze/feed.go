package breeze

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	accountentity "breeze_backend/internal/feature/accounts/domain/entity"
	"breeze_backend/internal/feature/stream/usecase"
	"breeze_backend/internal/platform/externalapi/breeze/dto"
	"breeze_backend/internal/shared/ratelimiter"
)

const (
	// tickTimeLayout is the trade-time format on live tick frames.
	tickTimeLayout = "Mon Jan 02 15:04:05 2006"
	// apiTimeLayout is the timestamp format the REST API expects.
	apiTimeLayout = "2006-01-02T15:04:05.000Z"
)

// restCallsPerMinute is the upstream per-key quota on REST calls. Shared
// across all feeds built by one factory.
const restCallsPerMinute = 100

// Factory builds one Feed per account.
type Factory struct {
	cfg     Config
	client  *http.Client
	loc     *time.Location
	limiter ratelimiter.RateLimiterInterface
}

// Factory implements the session loop's FeedFactory at compile time.
var _ usecase.FeedFactory = (*Factory)(nil)

// NewFactory creates a Factory. loc is the exchange timezone tick and bar
// wall times are interpreted in.
func NewFactory(cfg Config, client *http.Client, loc *time.Location) *Factory {
	return &Factory{
		cfg:     cfg,
		client:  client,
		loc:     loc,
		limiter: ratelimiter.NewRateLimiter(restCallsPerMinute, time.Minute),
	}
}

// NewFeed returns a fresh, unconnected feed bound to the account's
// credentials.
func (f *Factory) NewFeed(account *accountentity.BreezeAccount) usecase.Feed {
	return &Feed{cfg: f.cfg, client: f.client, loc: f.loc, limiter: f.limiter, account: account}
}

// Feed is one Breeze connection: the REST session plus, once connected, the
// live tick socket. Used by a single session loop at a time.
type Feed struct {
	cfg     Config
	client  *http.Client
	loc     *time.Location
	limiter ratelimiter.RateLimiterInterface
	account *accountentity.BreezeAccount

	onTick func(usecase.TickEvent)

	mu       sync.Mutex
	conn     *websocket.Conn
	stopRead context.CancelFunc
}

var _ usecase.Feed = (*Feed)(nil)

// OnTick registers the tick callback. Must be called before Connect.
func (f *Feed) OnTick(fn func(usecase.TickEvent)) {
	f.onTick = fn
}

// Connect validates the stored session token and opens the live socket. The
// read loop runs until Disconnect or a socket error.
func (f *Feed) Connect(ctx context.Context) error {
	if err := f.CheckLiveness(ctx); err != nil {
		return err
	}

	u := fmt.Sprintf("%s?api_key=%s&session_token=%s",
		f.cfg.StreamURL,
		url.QueryEscape(f.account.APIKey),
		url.QueryEscape(f.account.SessionToken))
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPClient: f.client})
	if err != nil {
		return fmt.Errorf("dial live stream: %w", err)
	}
	// Tick bursts at market open outrun the default read limit.
	conn.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.mu.Lock()
	f.conn = conn
	f.stopRead = cancel
	f.mu.Unlock()

	go f.readLoop(readCtx, conn)
	return nil
}

// Disconnect stops the read loop and closes the socket.
func (f *Feed) Disconnect() error {
	f.mu.Lock()
	conn, cancel := f.conn, f.stopRead
	f.conn, f.stopRead = nil, nil
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "session closed")
}

// Subscribe starts the live feed for a stock token.
func (f *Feed) Subscribe(ctx context.Context, stockToken string) error {
	return f.sendCommand(ctx, dto.StreamCommand{Action: "subscribe", StockToken: stockToken})
}

// Unsubscribe stops the live feed for a stock token.
func (f *Feed) Unsubscribe(ctx context.Context, stockToken string) error {
	return f.sendCommand(ctx, dto.StreamCommand{Action: "unsubscribe", StockToken: stockToken})
}

func (f *Feed) sendCommand(ctx context.Context, cmd dto.StreamCommand) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("live stream not connected")
	}
	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		return fmt.Errorf("send %s for %s: %w", cmd.Action, cmd.StockToken, err)
	}
	return nil
}

// readLoop decodes tick frames and forwards them to the callback. Frames
// that fail to decode are logged and skipped; one bad frame must not kill
// the stream.
func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg dto.TickMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() == nil {
				slog.Warn("live stream read ended", "error", err)
			}
			return
		}
		if msg.Symbol == "" {
			continue
		}

		tm, err := time.ParseInLocation(tickTimeLayout, msg.LTT, f.loc)
		if err != nil {
			slog.Warn("skipping tick with bad trade time",
				"symbol", msg.Symbol, "ltt", msg.LTT, "error", err)
			continue
		}
		if f.onTick != nil {
			f.onTick(usecase.TickEvent{
				Symbol:    msg.Symbol,
				LastPrice: msg.Last,
				LastQty:   msg.LTQ,
				Time:      tm,
			})
		}
	}
}

// CheckLiveness verifies the session token is still accepted upstream via
// the customerdetails endpoint.
func (f *Feed) CheckLiveness(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"SessionToken": f.account.SessionToken,
		"AppKey":       f.account.APIKey,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.cfg.BaseURL+"/customerdetails", strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	f.limiter.WaitIfNeeded()
	res, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("customerdetails: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()
	if res.StatusCode >= 400 {
		return fmt.Errorf("customerdetails http %d", res.StatusCode)
	}

	var body dto.CustomerDetailsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return err
	}
	if body.Error != "" {
		if isCredentialError(body.Error) {
			return fmt.Errorf("%w: %s", usecase.ErrCredentialExpired, body.Error)
		}
		return fmt.Errorf("customerdetails: %s", body.Error)
	}
	return nil
}

// HistoricalBars fetches minute bars for one bounded range.
func (f *Feed) HistoricalBars(ctx context.Context, hreq usecase.HistoricalRequest) ([]usecase.HistoricalBar, error) {
	q := url.Values{}
	q.Set("interval", hreq.Interval)
	q.Set("from_date", hreq.From.UTC().Format(apiTimeLayout))
	q.Set("to_date", hreq.To.UTC().Format(apiTimeLayout))
	q.Set("stock_code", hreq.StockCode)
	q.Set("exchange_code", hreq.ExchangeCode)
	if hreq.ProductType != "" {
		q.Set("product_type", hreq.ProductType)
		if hreq.Expiry != nil {
			q.Set("expiry_date", hreq.Expiry.UTC().Format(apiTimeLayout))
		}
	}
	if hreq.Right != "" {
		q.Set("right", hreq.Right)
	}
	if hreq.StrikePrice != nil {
		q.Set("strike_price", strconv.FormatFloat(*hreq.StrikePrice, 'f', -1, 64))
	}

	u := fmt.Sprintf("%s/historicalcharts?%s", f.cfg.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	f.sign(req, "{}")

	f.limiter.WaitIfNeeded()
	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("historicalcharts: %w", err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("historicalcharts http %d", res.StatusCode)
	}

	var body dto.HistoricalResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Error != "" {
		if isCredentialError(body.Error) {
			return nil, fmt.Errorf("%w: %s", usecase.ErrCredentialExpired, body.Error)
		}
		return nil, fmt.Errorf("historicalcharts: %s", body.Error)
	}

	bars := make([]usecase.HistoricalBar, 0, len(body.Bars))
	for _, v := range body.Bars {
		bar, err := parseBar(v, f.loc)
		if err != nil {
			// A bar the upstream mangled is dropped; the rest of the
			// batch is still good.
			slog.Warn("skipping malformed historical bar",
				"datetime", v.Datetime, "error", err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseBar(v dto.HistoricalBar, loc *time.Location) (usecase.HistoricalBar, error) {
	var bar usecase.HistoricalBar

	tm, err := time.ParseInLocation("2006-01-02 15:04:05", v.Datetime, loc)
	if err != nil {
		return bar, fmt.Errorf("parse time %q: %w", v.Datetime, err)
	}
	o, err := strconv.ParseFloat(v.Open, 64)
	if err != nil {
		return bar, fmt.Errorf("parse open %q: %w", v.Open, err)
	}
	h, err := strconv.ParseFloat(v.High, 64)
	if err != nil {
		return bar, fmt.Errorf("parse high %q: %w", v.High, err)
	}
	l, err := strconv.ParseFloat(v.Low, 64)
	if err != nil {
		return bar, fmt.Errorf("parse low %q: %w", v.Low, err)
	}
	c, err := strconv.ParseFloat(v.Close, 64)
	if err != nil {
		return bar, fmt.Errorf("parse close %q: %w", v.Close, err)
	}
	// Index bars report no volume.
	var vol float64
	if v.Volume != "" {
		vol, err = strconv.ParseFloat(v.Volume, 64)
		if err != nil {
			return bar, fmt.Errorf("parse volume %q: %w", v.Volume, err)
		}
	}

	return usecase.HistoricalBar{
		Time:   tm,
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: vol,
	}, nil
}

// sign adds the checksum authentication headers the v2 API requires:
// SHA256(timestamp + payload + secret), hex encoded.
func (f *Feed) sign(req *http.Request, payload string) {
	ts := time.Now().UTC().Format(apiTimeLayout)
	sum := sha256.Sum256([]byte(ts + payload + f.account.APISecret))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Checksum", "token "+hex.EncodeToString(sum[:]))
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-AppKey", f.account.APIKey)
	req.Header.Set("X-SessionToken", f.account.SessionToken)
}

// isCredentialError reports whether an upstream error message indicates a
// stale or invalid session token.
func isCredentialError(msg string) bool {
	m := strings.ToLower(msg)
	if !strings.Contains(m, "session") && !strings.Contains(m, "token") {
		return false
	}
	return strings.Contains(m, "expire") || strings.Contains(m, "invalid")
}
