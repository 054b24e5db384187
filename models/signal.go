package models

// SignalType is the directional action a strategy recommends.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
	SignalHold SignalType = "hold"
)

// SignalStrength is a strategy's confidence in its own signal.
type SignalStrength string

const (
	SignalStrengthStrong   SignalStrength = "strong"
	SignalStrengthModerate SignalStrength = "moderate"
	SignalStrengthWeak     SignalStrength = "weak"
)

// Signal is a strategy's recommendation for a single symbol at a point
// in time.
type Signal struct {
	// Symbol is the ticker the signal applies to.
	Symbol string `json:"symbol"`
	// Type is the recommended action.
	Type SignalType `json:"type"`
	// Strength is the strategy's confidence in the signal.
	Strength SignalStrength `json:"strength"`
	// Price is the reference price the signal was generated at.
	Price float64 `json:"price"`
	// Quantity is the suggested order size, in units of Symbol.
	Quantity float64 `json:"quantity"`
	// StopLoss is the suggested stop-loss price, zero if none.
	StopLoss float64 `json:"stop_loss"`
	// TakeProfit is the suggested take-profit price, zero if none.
	TakeProfit float64 `json:"take_profit"`
	// Reason is a short human-readable explanation for the signal.
	Reason string `json:"reason"`
	// StrategyName identifies the strategy that produced the signal.
	StrategyName string `json:"strategy_name"`
}
