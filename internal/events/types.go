package events

// Event enumerates high-level topics inside the engine.
type Event string

const (
	EventCandle       Event = "candle"
	EventSignal       Event = "signal"
	EventRiskAlert    Event = "risk_alert"
	EventOrderUpdate  Event = "order_update"
	EventOrderFilled  Event = "order.filled"
	EventOrderReject  Event = "order.rejected"
	EventTradeClosed  Event = "trade.closed"
	EventStatusChange Event = "status"
)

// All lists every topic, for subscribers that stream everything.
var All = []Event{
	EventCandle,
	EventSignal,
	EventRiskAlert,
	EventOrderUpdate,
	EventOrderFilled,
	EventOrderReject,
	EventTradeClosed,
	EventStatusChange,
}

// Envelope tags a payload with its topic when events are merged into one stream.
type Envelope struct {
	Type    Event `json:"type"`
	Payload any   `json:"payload"`
}
