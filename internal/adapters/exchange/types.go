package exchange

// Wire types for the exchange REST and WebSocket APIs. Prices and
// quantities travel as strings; decimals are parsed at the boundary.

type instrumentResponse struct {
	Symbol        string `json:"symbol"`
	TickSize      string `json:"tickSize"`
	LotSize       string `json:"lotSize"`
	MinQty        string `json:"minQty"`
	MaxOpenOrders int    `json:"maxOpenOrders"`
}

type markPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type placeOrderRequest struct {
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	TimeInForce string `json:"timeInForce"`
}

type placeOrderResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsEnvelope is the common frame of stream messages.
type wsEnvelope struct {
	Type string `json:"type"`
}

type wsFill struct {
	Type     string `json:"type"`
	OrderID  string `json:"orderId"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	EventID  string `json:"eventId"`
	Symbol   string `json:"symbol"`
}
