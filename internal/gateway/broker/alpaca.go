// Package broker talks to the Alpaca trading REST API.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"newstrader/internal/logger"
	"newstrader/internal/types"
)

const (
	PaperBaseURL = "https://paper-api.alpaca.markets/v2"
	LiveBaseURL  = "https://api.alpaca.markets/v2"

	headerKeyID  = "APCA-API-KEY-ID"
	headerSecret = "APCA-API-SECRET-KEY"

	defaultTimeout  = 20 * time.Second
	accountCacheTTL = 30 * time.Second

	orderAttempts = 3
	orderBackoff  = time.Second
	backoffFactor = 1.5
)

type Config struct {
	BaseURL string
	Key     string
	Secret  string
	Timeout time.Duration
}

// Alpaca implements the engine broker port. Order submission retries transport
// failures only; any HTTP answer ≥400 is a terminal *types.BrokerRejection.
type Alpaca struct {
	http *resty.Client

	mu        sync.Mutex
	account   types.Account
	accountAt time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewAlpaca(cfg Config) *Alpaca {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = PaperBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader(headerKeyID, cfg.Key).
		SetHeader(headerSecret, cfg.Secret).
		SetHeader("Content-Type", "application/json")
	return &Alpaca{http: client, now: time.Now, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func rejection(resp *resty.Response) error {
	var body apiError
	msg := strings.TrimSpace(resp.String())
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		msg = body.Message
	}
	return &types.BrokerRejection{Code: resp.StatusCode(), Message: msg}
}

type accountDTO struct {
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
}

// Account returns the cached snapshot while it is younger than 30s.
func (a *Alpaca) Account(ctx context.Context) (types.Account, error) {
	a.mu.Lock()
	if !a.accountAt.IsZero() && a.now().Sub(a.accountAt) < accountCacheTTL {
		acct := a.account
		a.mu.Unlock()
		return acct, nil
	}
	a.mu.Unlock()

	var dto accountDTO
	resp, err := a.http.R().SetContext(ctx).SetResult(&dto).Get("/account")
	if err != nil {
		return types.Account{}, &types.NetworkError{Op: "account", Err: err}
	}
	if resp.IsError() {
		return types.Account{}, rejection(resp)
	}
	acct := types.Account{Equity: parseNumber(dto.Equity), BuyingPower: parseNumber(dto.BuyingPower)}
	a.mu.Lock()
	a.account = acct
	a.accountAt = a.now()
	a.mu.Unlock()
	return acct, nil
}

type clockDTO struct {
	IsOpen    bool      `json:"is_open"`
	Timestamp time.Time `json:"timestamp"`
}

func (a *Alpaca) Clock(ctx context.Context) (types.Clock, error) {
	var dto clockDTO
	resp, err := a.http.R().SetContext(ctx).SetResult(&dto).Get("/clock")
	if err != nil {
		return types.Clock{}, &types.NetworkError{Op: "clock", Err: err}
	}
	if resp.IsError() {
		return types.Clock{}, rejection(resp)
	}
	return types.Clock{IsOpen: dto.IsOpen, Timestamp: dto.Timestamp}, nil
}

type positionDTO struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	MarketValue string `json:"market_value"`
}

func (p positionDTO) toPosition() types.Position {
	return types.Position{
		Symbol:      strings.ToUpper(p.Symbol),
		Qty:         parseNumber(p.Qty),
		MarketValue: parseNumber(p.MarketValue),
	}
}

func (a *Alpaca) Positions(ctx context.Context) (types.PositionMap, error) {
	var dtos []positionDTO
	resp, err := a.http.R().SetContext(ctx).SetResult(&dtos).Get("/positions")
	if err != nil {
		return nil, &types.NetworkError{Op: "positions", Err: err}
	}
	if resp.IsError() {
		return nil, rejection(resp)
	}
	out := make(types.PositionMap, len(dtos))
	for _, dto := range dtos {
		p := dto.toPosition()
		out[p.Symbol] = p
	}
	return out, nil
}

// Position returns nil without error when the symbol is flat.
func (a *Alpaca) Position(ctx context.Context, symbol string) (*types.Position, error) {
	var dto positionDTO
	resp, err := a.http.R().SetContext(ctx).SetResult(&dto).
		SetPathParam("symbol", symbol).
		Get("/positions/{symbol}")
	if err != nil {
		return nil, &types.NetworkError{Op: "position", Err: err}
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, rejection(resp)
	}
	p := dto.toPosition()
	return &p, nil
}

type closeDTO struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}

func (a *Alpaca) ClosePosition(ctx context.Context, symbol string, qty int) (types.OrderResult, error) {
	req := a.http.R().SetContext(ctx).SetPathParam("symbol", symbol)
	if qty > 0 {
		req.SetQueryParam("qty", strconv.Itoa(qty))
	}
	var dto closeDTO
	resp, err := req.SetResult(&dto).Delete("/positions/{symbol}")
	if err != nil {
		return types.OrderResult{}, &types.NetworkError{Op: "close position", Err: err}
	}
	if resp.IsError() {
		return types.OrderResult{}, rejection(resp)
	}
	if dto.ID == "" {
		dto.ID = "close"
	}
	return types.OrderResult{ID: dto.ID, ClientOrderID: dto.ClientOrderID, Status: dto.Status}, nil
}

type legDTO struct {
	LimitPrice string `json:"limit_price,omitempty"`
	StopPrice  string `json:"stop_price,omitempty"`
}

type orderDTO struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Type          string  `json:"type"`
	TimeInForce   string  `json:"time_in_force"`
	Qty           string  `json:"qty,omitempty"`
	Notional      string  `json:"notional,omitempty"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	OrderClass    string  `json:"order_class,omitempty"`
	TakeProfit    *legDTO `json:"take_profit,omitempty"`
	StopLoss      *legDTO `json:"stop_loss,omitempty"`
}

func newOrderDTO(req types.OrderRequest) orderDTO {
	dto := orderDTO{
		Symbol:        req.Symbol,
		Side:          string(req.Side),
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
	}
	if dto.Type == "" {
		dto.Type = "market"
	}
	if dto.TimeInForce == "" {
		dto.TimeInForce = "day"
	}
	if req.Notional > 0 {
		dto.Notional = decimal.NewFromFloat(req.Notional).Round(2).String()
	} else {
		dto.Qty = strconv.Itoa(req.Qty)
	}
	if req.Bracket() {
		dto.OrderClass = "bracket"
		dto.TakeProfit = &legDTO{LimitPrice: decimal.NewFromFloat(req.TakeProfit).Round(2).String()}
		dto.StopLoss = &legDTO{StopPrice: decimal.NewFromFloat(req.StopLoss).Round(2).String()}
	}
	return dto
}

// PlaceOrder submits one order. The client order id makes resubmission after a
// transport failure idempotent on the broker side.
func (a *Alpaca) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	body := newOrderDTO(req)
	wait := orderBackoff
	var lastErr error
	for attempt := 1; attempt <= orderAttempts; attempt++ {
		var out closeDTO
		resp, err := a.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post("/orders")
		if err == nil {
			if resp.IsError() {
				return types.OrderResult{}, rejection(resp)
			}
			return types.OrderResult{ID: out.ID, ClientOrderID: out.ClientOrderID, Status: out.Status}, nil
		}
		if ctx.Err() != nil {
			return types.OrderResult{}, ctx.Err()
		}
		lastErr = err
		if attempt < orderAttempts {
			logger.Warnf("order %s attempt %d failed: %v, retry in %s", req.ClientOrderID, attempt, err, wait)
			if serr := a.sleep(ctx, wait); serr != nil {
				return types.OrderResult{}, serr
			}
			wait = time.Duration(float64(wait) * backoffFactor)
		}
	}
	return types.OrderResult{}, &types.NetworkError{Op: fmt.Sprintf("place order %s", req.ClientOrderID), Err: lastErr}
}

func parseNumber(s string) float64 {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}
