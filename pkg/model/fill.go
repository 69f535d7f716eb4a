package model

import "fmt"

// Fill is an immutable match record. Price is always the resting order's
// price: improvement goes to the passive side.
type Fill struct {
	Price       Price    `json:"price"`
	Quantity    Quantity `json:"quantity"`
	BuyOrderID  OrderID  `json:"buyOrderId"`
	SellOrderID OrderID  `json:"sellOrderId"`
	Time        Time     `json:"time"`
	Passive     Side     `json:"passive"` // which side was resting
}

func (f Fill) String() string {
	return fmt.Sprintf("[fill %d@%d buy:%d sell:%d t:%d passive:%s]",
		f.Quantity, f.Price, f.BuyOrderID, f.SellOrderID, f.Time, f.Passive)
}
