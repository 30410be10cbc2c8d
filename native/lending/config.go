package lending

import "fmt"

// Config captures the protocol parameters for the lending module. Rates are
// integers: MinRate/MaxRate in basis points, PenaltyRate per mille per day,
// CommissionRate in percent of the interest and penalty collected.
type Config struct {
	MinRate             uint64 `toml:"MinRate"`
	MaxRate             uint64 `toml:"MaxRate"`
	PenaltyRate         uint64 `toml:"PenaltyRate"`
	PenaltyCapDays      uint64 `toml:"PenaltyCapDays"`
	CommissionRate      uint64 `toml:"CommissionRate"`
	RepaymentCycle      uint64 `toml:"RepaymentCycleSeconds"`
	LiquidationDeadline uint64 `toml:"LiquidationDeadlineSeconds"`
}

// Validate rejects internally inconsistent parameter sets.
func (c Config) Validate() error {
	if c.MinRate > c.MaxRate {
		return fmt.Errorf("%w: min rate %d exceeds max rate %d", ErrInvalidConfig, c.MinRate, c.MaxRate)
	}
	if c.CommissionRate > commissionDenominator {
		return fmt.Errorf("%w: commission rate %d exceeds %d%%", ErrInvalidConfig, c.CommissionRate, commissionDenominator)
	}
	return nil
}

// RateAllowed reports whether rate lies within [MinRate, MaxRate].
func (c Config) RateAllowed(rate uint64) bool {
	return rate >= c.MinRate && rate <= c.MaxRate
}
