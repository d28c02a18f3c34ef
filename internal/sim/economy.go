package sim

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nexusim/nexusim/internal/core/observability/log"
)

type OrderSide uint8

const (
	Buy OrderSide = iota
	Sell
)

// Order is a resting bid or ask in the toy order book.
type Order struct {
	ID    string
	Owner string
	Item  string
	Side  OrderSide
	Qty   int
	Price int
}

// Economy matches queued orders once per cycle. Orders submitted between
// cycles rest in the book until a counterparty appears.
type Economy struct {
	logger log.Log

	mu    sync.Mutex
	buys  []Order
	sells []Order

	ticking atomic.Bool
	trades  atomic.Uint64
}

func NewEconomy(logger log.Log) *Economy {
	if logger == nil {
		logger = log.Nop()
	}
	return &Economy{logger: logger}
}

// SubmitOrder queues an order and returns its assigned ID.
func (e *Economy) SubmitOrder(o Order) string {
	o.ID = uuid.NewString()
	e.mu.Lock()
	if o.Side == Buy {
		e.buys = append(e.buys, o)
	} else {
		e.sells = append(e.sells, o)
	}
	e.mu.Unlock()
	return o.ID
}

// Trades returns the number of executed matches.
func (e *Economy) Trades() uint64 {
	return e.trades.Load()
}

func (e *Economy) ID() string {
	return "economy"
}

func (e *Economy) Tick(tick uint64) {
	if !e.ticking.CompareAndSwap(false, true) {
		return
	}
	defer e.ticking.Store(false)

	e.mu.Lock()
	defer e.mu.Unlock()

	var restingSells []Order
	for _, s := range e.sells {
		matched := false
		for i := range e.buys {
			b := &e.buys[i]
			if b.Qty == 0 || b.Item != s.Item || b.Price < s.Price {
				continue
			}
			fill := b.Qty
			if s.Qty < fill {
				fill = s.Qty
			}
			b.Qty -= fill
			s.Qty -= fill
			e.trades.Add(1)
			if s.Qty == 0 {
				matched = true
				break
			}
		}
		if !matched {
			restingSells = append(restingSells, s)
		}
	}
	e.sells = restingSells

	filled := e.buys[:0]
	for _, b := range e.buys {
		if b.Qty > 0 {
			filled = append(filled, b)
		}
	}
	e.buys = filled
}
