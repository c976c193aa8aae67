package trader

import (
	"fmt"
	"sync"

	"gridscalper/logger"
)

// PriceSource supplies market data for the paper trader. The live
// FuturesTrader satisfies it with keyless public endpoints.
type PriceSource interface {
	GetMarketPrice(symbol string) (float64, error)
	GetKlines(symbol string, interval string, limit int) ([]Kline, error)
}

type paperOrder struct {
	id  int64
	req OrderRequest
}

// PaperTrader simulates order matching in memory against real market prices.
// Limit orders rest until an observed price crosses them; market orders fill
// immediately at the last observed price. No fees or slippage are modelled.
type PaperTrader struct {
	source PriceSource

	mu        sync.Mutex
	nextID    int64
	lastPrice map[string]float64
	open      map[string][]paperOrder
	positions map[string]*Position
}

func NewPaperTrader(source PriceSource) *PaperTrader {
	return &PaperTrader{
		source:    source,
		nextID:    1,
		lastPrice: make(map[string]float64),
		open:      make(map[string][]paperOrder),
		positions: make(map[string]*Position),
	}
}

// GetMarketPrice fetches the real price and runs the matching pass: every
// resting limit order crossed by the new price fills at its limit price.
func (p *PaperTrader) GetMarketPrice(symbol string) (float64, error) {
	price, err := p.source.GetMarketPrice(symbol)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	p.lastPrice[symbol] = price
	p.matchLocked(symbol, price)
	p.mu.Unlock()

	return price, nil
}

func (p *PaperTrader) GetPosition(symbol string) (*Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return &Position{Symbol: symbol}, nil
	}
	copied := *pos
	copied.MarkPrice = p.lastPrice[symbol]
	return &copied, nil
}

func (p *PaperTrader) PlaceOrder(req *OrderRequest) (*OrderResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("paper order quantity must be positive, got %v", req.Quantity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++

	result := &OrderResult{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Price:         req.Price,
		Quantity:      req.Quantity,
	}

	if req.Price <= 0 {
		last, ok := p.lastPrice[req.Symbol]
		if !ok {
			return nil, fmt.Errorf("paper market order for %s before any observed price", req.Symbol)
		}
		p.fillLocked(req, last)
		result.Status = "FILLED"
		result.Price = last
		result.FilledQty = req.Quantity
		return result, nil
	}

	p.open[req.Symbol] = append(p.open[req.Symbol], paperOrder{id: id, req: *req})
	result.Status = "NEW"
	logger.Debugf("[Paper] Resting %s limit %.4f x %.6f on %s", req.Side, req.Price, req.Quantity, req.Symbol)
	return result, nil
}

func (p *PaperTrader) ClosePosition(symbol string, qty float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok || pos.Size == 0 {
		return nil
	}
	last, ok := p.lastPrice[symbol]
	if !ok {
		return fmt.Errorf("paper close for %s before any observed price", symbol)
	}

	closeQty := pos.Size
	if closeQty < 0 {
		closeQty = -closeQty
	}
	if qty > 0 && qty < closeQty {
		closeQty = qty
	}

	req := &OrderRequest{Symbol: symbol, Quantity: closeQty, ReduceOnly: true}
	if pos.Size > 0 {
		req.Side = Sell
	} else {
		req.Side = Buy
	}
	p.fillLocked(req, last)
	return nil
}

func (p *PaperTrader) CancelAllOrders(symbol string) error {
	p.mu.Lock()
	n := len(p.open[symbol])
	delete(p.open, symbol)
	p.mu.Unlock()
	if n > 0 {
		logger.Debugf("[Paper] Cancelled %d open orders on %s", n, symbol)
	}
	return nil
}

func (p *PaperTrader) SetLeverage(symbol string, leverage int) error { return nil }

func (p *PaperTrader) SetPositionMode(dualSide bool) error { return nil }

func (p *PaperTrader) GetKlines(symbol string, interval string, limit int) ([]Kline, error) {
	return p.source.GetKlines(symbol, interval, limit)
}

// matchLocked fills every resting order crossed by price. Must hold p.mu.
func (p *PaperTrader) matchLocked(symbol string, price float64) {
	orders := p.open[symbol]
	if len(orders) == 0 {
		return
	}

	remaining := orders[:0]
	for _, o := range orders {
		crossed := (o.req.Side == Buy && price <= o.req.Price) ||
			(o.req.Side == Sell && price >= o.req.Price)
		if crossed {
			p.fillLocked(&o.req, o.req.Price)
		} else {
			remaining = append(remaining, o)
		}
	}
	p.open[symbol] = remaining
}

// fillLocked applies a fill to the simulated position. Must hold p.mu.
func (p *PaperTrader) fillLocked(req *OrderRequest, price float64) {
	pos, ok := p.positions[req.Symbol]
	if !ok {
		pos = &Position{Symbol: req.Symbol, Leverage: 1}
		p.positions[req.Symbol] = pos
	}

	delta := req.Quantity
	if req.Side == Sell {
		delta = -delta
	}

	newSize := pos.Size + delta
	switch {
	case pos.Size == 0 || (pos.Size > 0) == (newSize > 0) && abs(newSize) > abs(pos.Size):
		// Opening or adding: weighted average entry.
		total := abs(pos.Size)*pos.EntryPrice + abs(delta)*price
		pos.EntryPrice = total / (abs(pos.Size) + abs(delta))
	case newSize == 0:
		pos.EntryPrice = 0
	case (pos.Size > 0) != (newSize > 0):
		// Flipped through zero: the remainder is a fresh position.
		pos.EntryPrice = price
	}
	pos.Size = newSize

	logger.Infof("[Paper] Fill %s %.6f %s @ %.4f, position now %.6f",
		req.Side, req.Quantity, req.Symbol, price, pos.Size)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
