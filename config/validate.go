package config

import (
	"fmt"
	"strings"

	"xlend/crypto"
	"xlend/native/lending"
	"xlend/storage"
)

// Validate checks the configuration for values the node cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DatabaseBackend)) {
	case "", storage.BackendLevelDB, storage.BackendBolt, storage.BackendMemory:
	default:
		return fmt.Errorf("DatabaseBackend: unsupported backend %q", c.DatabaseBackend)
	}
	if c.RateLimitPerSecond < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit: values must not be negative")
	}
	if _, err := c.Genesis(); err != nil {
		return err
	}
	return nil
}

// Params returns the protocol parameters from the lending table.
func (l Lending) Params() lending.Config {
	return lending.Config{
		MinRate:             l.MinRate,
		MaxRate:             l.MaxRate,
		PenaltyRate:         l.PenaltyRate,
		PenaltyCapDays:      l.PenaltyCapDays,
		CommissionRate:      l.CommissionRate,
		RepaymentCycle:      l.RepaymentCycleSeconds,
		LiquidationDeadline: l.LiquidationDeadlineSeconds,
	}
}

// Genesis decodes the lending table into the engine's seed record.
func (c *Config) Genesis() (lending.Genesis, error) {
	var genesis lending.Genesis
	admin, err := crypto.DecodeAddress20(strings.TrimSpace(c.Lending.Admin), crypto.XLPrefix)
	if err != nil {
		return genesis, fmt.Errorf("lending.Admin: %w", err)
	}
	genesis.Admin = admin
	genesis.Config = c.Lending.Params()
	if err := genesis.Config.Validate(); err != nil {
		return genesis, err
	}

	seen := make(map[[20]byte]bool, len(c.Lending.Witnesses))
	for i, w := range c.Lending.Witnesses {
		addr, err := crypto.DecodeAddress20(strings.TrimSpace(w), crypto.XLPrefix)
		if err != nil {
			return genesis, fmt.Errorf("lending.Witnesses[%d]: %w", i, err)
		}
		if seen[addr] {
			return genesis, fmt.Errorf("lending.Witnesses[%d]: duplicate witness %s", i, w)
		}
		seen[addr] = true
		genesis.Witnesses = append(genesis.Witnesses, addr)
	}

	genesis.RelayFees = make(map[uint32]uint64, len(c.Lending.RelayFees))
	for _, fee := range c.Lending.RelayFees {
		if _, dup := genesis.RelayFees[fee.ChainID]; dup {
			return genesis, fmt.Errorf("lending.RelayFees: duplicate chain %d", fee.ChainID)
		}
		genesis.RelayFees[fee.ChainID] = fee.Fee
	}

	genesis.Balances = make(map[[20]byte]uint64, len(c.Lending.Balances))
	for i, bal := range c.Lending.Balances {
		addr, err := crypto.DecodeAddress20(strings.TrimSpace(bal.Address), crypto.XLPrefix)
		if err != nil {
			return genesis, fmt.Errorf("lending.Balances[%d]: %w", i, err)
		}
		genesis.Balances[addr] += bal.Amount
	}
	return genesis, nil
}
