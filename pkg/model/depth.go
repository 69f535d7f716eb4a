package model

type DepthLevel struct {
	Price      Price    `json:"price"`
	Volume     Quantity `json:"volume"`
	OrderCount int      `json:"orderCount"`
}

// MarketDepth represents the full order book depth
type MarketDepth struct {
	Bids []DepthLevel `json:"bids"` // Highest to lowest price
	Asks []DepthLevel `json:"asks"` // Lowest to highest price
	Time Time         `json:"time"`
}

// TopOfBook represents best bid/ask
type TopOfBook struct {
	BestBid *DepthLevel `json:"bestBid"`
	BestAsk *DepthLevel `json:"bestAsk"`
	Spread  Price       `json:"spread"`
}
