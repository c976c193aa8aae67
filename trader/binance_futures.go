package trader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"gridscalper/logger"
)

// FuturesTrader talks to Binance USDT-M futures via the official REST API.
type FuturesTrader struct {
	client *futures.Client

	// dualSide mirrors the account position mode. In hedge mode orders
	// carry an explicit position side; in one-way mode closes use
	// reduceOnly instead.
	dualSide bool

	cacheDuration time.Duration

	priceCache      map[string]priceEntry
	priceCacheMutex sync.RWMutex

	symbolInfo      map[string]symbolPrecision
	symbolInfoMutex sync.RWMutex
}

// The pinned client only exports LIMIT, MARKET and LIQUIDATION order types;
// the conditional close types have to be spelled out.
const (
	orderTypeTakeProfitMarket = futures.OrderType("TAKE_PROFIT_MARKET")
	orderTypeStopMarket       = futures.OrderType("STOP_MARKET")
)

type priceEntry struct {
	price   float64
	fetched time.Time
}

type symbolPrecision struct {
	pricePrecision    int
	quantityPrecision int
}

// NewFuturesTrader creates a trader against the production or testnet REST
// endpoint. The testnet switch is process-wide because the underlying client
// resolves its base URL globally.
func NewFuturesTrader(apiKey, secretKey string, testnet bool) *FuturesTrader {
	futures.UseTestnet = testnet
	return &FuturesTrader{
		client:        futures.NewClient(apiKey, secretKey),
		cacheDuration: 15 * time.Second,
		priceCache:    make(map[string]priceEntry),
		symbolInfo:    make(map[string]symbolPrecision),
	}
}

// GetMarketPrice returns the latest ticker price, served from a short-lived
// cache to keep the per-cycle API call count down.
func (t *FuturesTrader) GetMarketPrice(symbol string) (float64, error) {
	t.priceCacheMutex.RLock()
	entry, ok := t.priceCache[symbol]
	t.priceCacheMutex.RUnlock()
	if ok && t.cacheDuration > 0 && time.Since(entry.fetched) < t.cacheDuration {
		return entry.price, nil
	}

	prices, err := t.client.NewListPricesService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, fmt.Errorf("get market price for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("get market price for %s: empty response", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", prices[0].Price, err)
	}

	t.priceCacheMutex.Lock()
	t.priceCache[symbol] = priceEntry{price: price, fetched: time.Now()}
	t.priceCacheMutex.Unlock()

	return price, nil
}

// GetPosition returns the net position for symbol. In hedge mode the two
// legs are summed into a single signed size.
func (t *FuturesTrader) GetPosition(symbol string) (*Position, error) {
	risks, err := t.client.NewGetPositionRiskService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get position for %s: %w", symbol, err)
	}

	pos := &Position{Symbol: symbol}
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(r.Leverage)

		// In hedge mode the SHORT leg reports a negative amount already.
		pos.Size += amt
		pos.EntryPrice = entry
		pos.MarkPrice = mark
		pos.UnrealPnL += pnl
		pos.Leverage = lev
	}
	return pos, nil
}

// PlaceOrder submits the entry order, then any attached TP/SL companion
// orders. Companion failures are logged but do not fail the entry: the
// position exists at that point and the caller's soft checks still cover it.
func (t *FuturesTrader) PlaceOrder(req *OrderRequest) (*OrderResult, error) {
	qty, err := t.formatQuantity(req.Symbol, req.Quantity)
	if err != nil {
		return nil, err
	}

	svc := t.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(qty)

	if req.Price > 0 {
		price, err := t.formatPrice(req.Symbol, req.Price)
		if err != nil {
			return nil, err
		}
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(price)
	} else {
		svc = svc.Type(futures.OrderTypeMarket)
	}

	if t.dualSide {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	} else if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := svc.Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("place %s %s order for %s: %w", req.Side, orderKind(req), req.Symbol, err)
	}

	result := &OrderResult{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Status:        string(resp.Status),
	}
	result.Price, _ = strconv.ParseFloat(resp.Price, 64)
	result.Quantity, _ = strconv.ParseFloat(resp.OrigQuantity, 64)
	result.FilledQty, _ = strconv.ParseFloat(resp.ExecutedQuantity, 64)

	if req.TakeProfitPrice > 0 {
		if err := t.placeTrigger(req, orderTypeTakeProfitMarket, req.TakeProfitPrice); err != nil {
			logger.Errorf("[Trader] Failed to attach take-profit at %.2f for %s: %v", req.TakeProfitPrice, req.Symbol, err)
		}
	}
	if req.StopLossPrice > 0 {
		if err := t.placeTrigger(req, orderTypeStopMarket, req.StopLossPrice); err != nil {
			logger.Errorf("[Trader] Failed to attach stop-loss at %.2f for %s: %v", req.StopLossPrice, req.Symbol, err)
		}
	}

	return result, nil
}

// placeTrigger places a close-position trigger order on the opposite side of
// the entry.
func (t *FuturesTrader) placeTrigger(req *OrderRequest, orderType futures.OrderType, stopPrice float64) error {
	price, err := t.formatPrice(req.Symbol, stopPrice)
	if err != nil {
		return err
	}

	side := Sell
	if req.Side == Sell {
		side = Buy
	}

	svc := t.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(side)).
		Type(orderType).
		StopPrice(price).
		ClosePosition(true)

	if t.dualSide {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}

	_, err = svc.Do(context.Background())
	return err
}

// ClosePosition market-closes up to qty of the open position. qty <= 0
// closes everything.
func (t *FuturesTrader) ClosePosition(symbol string, qty float64) error {
	pos, err := t.GetPosition(symbol)
	if err != nil {
		return err
	}
	if pos.Size == 0 {
		return nil
	}

	closeQty := pos.Size
	if closeQty < 0 {
		closeQty = -closeQty
	}
	if qty > 0 && qty < closeQty {
		closeQty = qty
	}

	req := &OrderRequest{
		Symbol:     symbol,
		Quantity:   closeQty,
		ReduceOnly: true,
	}
	if pos.Size > 0 {
		req.Side = Sell
		req.PositionSide = PositionLong
	} else {
		req.Side = Buy
		req.PositionSide = PositionShort
	}

	_, err = t.PlaceOrder(req)
	return err
}

// CancelAllOrders cancels every open order for symbol.
func (t *FuturesTrader) CancelAllOrders(symbol string) error {
	err := t.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return fmt.Errorf("cancel open orders for %s: %w", symbol, err)
	}
	return nil
}

// SetLeverage sets the leverage multiplier for symbol.
func (t *FuturesTrader) SetLeverage(symbol string, leverage int) error {
	_, err := t.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(context.Background())
	if err != nil {
		return fmt.Errorf("set leverage %dx for %s: %w", leverage, symbol, err)
	}
	logger.Infof("[Trader] Leverage for %s set to %dx", symbol, leverage)
	return nil
}

// SetPositionMode switches the account between hedge and one-way mode.
// Binance rejects a no-op switch with code -4059, which is not an error for
// our purposes.
func (t *FuturesTrader) SetPositionMode(dualSide bool) error {
	err := t.client.NewChangePositionModeService().DualSide(dualSide).Do(context.Background())
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == -4059 {
			t.dualSide = dualSide
			return nil
		}
		return fmt.Errorf("set position mode dualSide=%v: %w", dualSide, err)
	}
	t.dualSide = dualSide
	return nil
}

// GetKlines fetches recent candles for symbol.
func (t *FuturesTrader) GetKlines(symbol string, interval string, limit int) ([]Kline, error) {
	raw, err := t.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get klines for %s %s: %w", symbol, interval, err)
	}

	klines := make([]Kline, 0, len(raw))
	for _, k := range raw {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closeP, _ := strconv.ParseFloat(k.Close, 64)
		vol, _ := strconv.ParseFloat(k.Volume, 64)
		klines = append(klines, Kline{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closeP,
			Volume:   vol,
		})
	}
	return klines, nil
}

// getSymbolPrecision loads price/quantity precision from exchangeInfo once
// per symbol and caches it for the process lifetime.
func (t *FuturesTrader) getSymbolPrecision(symbol string) (symbolPrecision, error) {
	t.symbolInfoMutex.RLock()
	info, ok := t.symbolInfo[symbol]
	t.symbolInfoMutex.RUnlock()
	if ok {
		return info, nil
	}

	exInfo, err := t.client.NewExchangeInfoService().Do(context.Background())
	if err != nil {
		return symbolPrecision{}, fmt.Errorf("get exchange info: %w", err)
	}

	t.symbolInfoMutex.Lock()
	for _, s := range exInfo.Symbols {
		t.symbolInfo[s.Symbol] = symbolPrecision{
			pricePrecision:    s.PricePrecision,
			quantityPrecision: s.QuantityPrecision,
		}
	}
	info, ok = t.symbolInfo[symbol]
	t.symbolInfoMutex.Unlock()

	if !ok {
		return symbolPrecision{}, fmt.Errorf("symbol %s not found in exchange info", symbol)
	}
	return info, nil
}

func (t *FuturesTrader) formatPrice(symbol string, price float64) (string, error) {
	info, err := t.getSymbolPrecision(symbol)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(price, 'f', info.pricePrecision, 64), nil
}

func (t *FuturesTrader) formatQuantity(symbol string, qty float64) (string, error) {
	info, err := t.getSymbolPrecision(symbol)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(qty, 'f', info.quantityPrecision, 64), nil
}

func orderKind(req *OrderRequest) string {
	if req.Price > 0 {
		return "limit"
	}
	return "market"
}
