// Package domain contains the core domain types for the detection context.
package domain

import "fmt"

// Strategy is the closed set of detection strategies. Adding a value means
// extending every switch over Strategy in this module.
type Strategy uint8

const (
	StrategyDirect Strategy = iota + 1
	StrategyTriangular
	StrategyMomentum
	StrategyYield
)

// Strategies lists every strategy in detection order.
func Strategies() []Strategy {
	return []Strategy{StrategyDirect, StrategyTriangular, StrategyMomentum, StrategyYield}
}

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyTriangular:
		return "triangular"
	case StrategyMomentum:
		return "momentum"
	case StrategyYield:
		return "yield"
	}
	return fmt.Sprintf("strategy(%d)", uint8(s))
}

// ParseStrategy is the inverse of String.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q", s)
}

func (s Strategy) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Strategy) UnmarshalText(b []byte) error {
	st, err := ParseStrategy(string(b))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Secondary strategies only run when direct arbitrage finds nothing.
func (s Strategy) Secondary() bool {
	switch s {
	case StrategyDirect, StrategyTriangular:
		return false
	case StrategyMomentum, StrategyYield:
		return true
	}
	return true
}

// Leveraged strategies chain several fills that must all land, like a
// flash-loan route.
func (s Strategy) Leveraged() bool {
	switch s {
	case StrategyTriangular:
		return true
	case StrategyDirect, StrategyMomentum, StrategyYield:
		return false
	}
	return true
}

// Arbitrage strategies lock in a price difference at detection time; the
// others bet on a future move.
func (s Strategy) Arbitrage() bool {
	switch s {
	case StrategyDirect, StrategyTriangular:
		return true
	case StrategyMomentum, StrategyYield:
		return false
	}
	return false
}
