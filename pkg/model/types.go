package model

import (
	"math"
	"time"
)

// Price is a fixed-point price in ticks. Book comparisons are integer only.
type Price int64

// Quantity is a lot count.
type Quantity int64

// OrderID uniquely identifies an order for the lifetime of a run.
type OrderID uint64

// Time is virtual simulation time in nanoseconds. It advances only when
// the scheduler dispatches an event, never with the wall clock.
type Time int64

// Route classifies the network path an order travels, e.g. "colo" or
// "retail". Latency and loss parameters are looked up per route.
type Route string

type Side uint8

const (
	BID Side = iota // buy
	ASK             // sell
)

func (s Side) String() string {
	if s == BID {
		return "BID"
	}
	return "ASK"
}

func (s Side) Opposite() Side {
	if s == BID {
		return ASK
	}
	return BID
}

type OrderStatus uint8

const (
	ORDER_PENDING   OrderStatus = iota // created, in transit
	ORDER_RESTING                      // on the book, unfilled residual
	ORDER_FILLED                       // terminal
	ORDER_CANCELLED                    // terminal
	ORDER_LOST                         // terminal, dropped in transit
)

func (st OrderStatus) String() string {
	switch st {
	case ORDER_PENDING:
		return "pending"
	case ORDER_RESTING:
		return "resting"
	case ORDER_FILLED:
		return "filled"
	case ORDER_CANCELLED:
		return "cancelled"
	case ORDER_LOST:
		return "lost"
	}
	return "unknown"
}

// Terminal reports whether the status is final.
func (st OrderStatus) Terminal() bool {
	return st == ORDER_FILLED || st == ORDER_CANCELLED || st == ORDER_LOST
}

// TimeFromDuration converts a real duration into virtual nanoseconds.
func TimeFromDuration(d time.Duration) Time {
	return Time(d.Nanoseconds())
}

// PriceFromFloat converts a decimal price into ticks. Only the replay
// ingestion path uses this; the book itself never touches floats.
func PriceFromFloat(p, tick float64) Price {
	if tick == 0 {
		return Price(math.Round(p))
	}
	return Price(math.Round(p / tick))
}

// PriceToFloat converts ticks back to a decimal price for display.
func PriceToFloat(p Price, tick float64) float64 {
	if tick == 0 {
		return float64(p)
	}
	return float64(p) * tick
}
