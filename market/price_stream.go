// Package market streams live mark prices over the Binance futures websocket.
package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridscalper/logger"
)

const defaultStreamBase = "wss://fstream.binance.com/ws"

// PriceStream keeps a websocket subscription to one symbol's mark price and
// caches the latest tick. The bot reads the cache each cycle and falls back
// to REST when the tick is stale.
type PriceStream struct {
	symbol  string
	baseURL string

	mu        sync.RWMutex
	conn      *websocket.Conn
	price     float64
	updatedAt time.Time

	reconnect bool
	done      chan struct{}
}

func NewPriceStream(symbol string) *PriceStream {
	return &PriceStream{
		symbol:    symbol,
		baseURL:   defaultStreamBase,
		reconnect: true,
		done:      make(chan struct{}),
	}
}

// Connect dials the stream and starts the read loop. The read loop
// reconnects on its own after errors until Close is called.
func (s *PriceStream) Connect() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	url := fmt.Sprintf("%s/%s@markPrice@1s", s.baseURL, strings.ToLower(s.symbol))
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("mark price stream connection failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	logger.Infof("[Market] Mark price stream connected for %s", s.symbol)
	go s.readMessages()

	return nil
}

// LatestPrice returns the last streamed price, its arrival time, and whether
// any tick has been received yet.
func (s *PriceStream) LatestPrice() (float64, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price, s.updatedAt, !s.updatedAt.IsZero()
}

func (s *PriceStream) readMessages() {
	for {
		select {
		case <-s.done:
			return
		default:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()

			if conn == nil {
				time.Sleep(1 * time.Second)
				continue
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				logger.Warnf("[Market] Failed to read mark price message: %v", err)
				s.handleReconnect()
				return
			}

			s.handleMessage(message)
		}
	}
}

func (s *PriceStream) handleMessage(message []byte) {
	var event struct {
		EventType string `json:"e"`
		MarkPrice string `json:"p"`
	}
	if err := json.Unmarshal(message, &event); err != nil {
		logger.Warnf("[Market] Failed to parse mark price message: %v", err)
		return
	}
	if event.EventType != "markPriceUpdate" {
		return
	}

	price, err := strconv.ParseFloat(event.MarkPrice, 64)
	if err != nil {
		logger.Warnf("[Market] Invalid mark price %q: %v", event.MarkPrice, err)
		return
	}

	s.mu.Lock()
	s.price = price
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *PriceStream) handleReconnect() {
	// done is the race-free stop signal; the reconnect flag is only touched
	// under the mutex in Close.
	select {
	case <-s.done:
		return
	default:
	}

	logger.Infof("[Market] Mark price stream reconnecting for %s...", s.symbol)
	time.Sleep(3 * time.Second)

	select {
	case <-s.done:
		return
	default:
	}

	if err := s.Connect(); err != nil {
		logger.Warnf("[Market] Mark price stream reconnection failed: %v", err)
		go s.handleReconnect()
	}
}

func (s *PriceStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.reconnect {
		return
	}
	s.reconnect = false
	close(s.done)

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}
