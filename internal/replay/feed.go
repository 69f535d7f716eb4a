// Package replay produces the exogenous market data stream the scheduler
// merges with originator order flow.
package replay

import (
	"errors"

	"latsim/pkg/model"
)

// ErrOutOfOrder flags a feed whose timestamps go backwards. The scheduler
// relies on each stream being non-decreasing on its own.
var ErrOutOfOrder = errors.New("feed timestamps not non-decreasing")

// Feed is a pull-based, lazy, finite sequence of exogenous book events.
// Next returns io.EOF when the stream ends; that is normal termination,
// not an error.
type Feed interface {
	Next() (*model.MarketEvent, error)
}
