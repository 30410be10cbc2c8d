package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xlend/crypto"

	"github.com/BurntSushi/toml"
)

// EnvEnvironment overrides Config.Environment when set.
const EnvEnvironment = "XLEND_ENV"

type Config struct {
	RPCAddress         string  `toml:"RPCAddress"`
	MetricsAddress     string  `toml:"MetricsAddress"`
	DataDir            string  `toml:"DataDir"`
	DatabaseBackend    string  `toml:"DatabaseBackend"`
	Environment        string  `toml:"Environment"`
	LogFile            string  `toml:"LogFile"`
	AdminKeystorePath  string  `toml:"AdminKeystorePath"`
	RPCReadTimeout     int     `toml:"RPCReadTimeout"`
	RPCWriteTimeout    int     `toml:"RPCWriteTimeout"`
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`
	EventLogCapacity   int     `toml:"EventLogCapacity"`
	Lending            Lending `toml:"lending"`
}

// Lending seeds the protocol on first start and carries its runtime switches.
type Lending struct {
	Admin     string   `toml:"Admin"`
	Witnesses []string `toml:"Witnesses"`
	Paused    bool     `toml:"Paused"`

	MinRate                    uint64 `toml:"MinRate"`
	MaxRate                    uint64 `toml:"MaxRate"`
	PenaltyRate                uint64 `toml:"PenaltyRate"`
	PenaltyCapDays             uint64 `toml:"PenaltyCapDays"`
	CommissionRate             uint64 `toml:"CommissionRate"`
	RepaymentCycleSeconds      uint64 `toml:"RepaymentCycleSeconds"`
	LiquidationDeadlineSeconds uint64 `toml:"LiquidationDeadlineSeconds"`

	RelayFees []RelayFee       `toml:"RelayFees"`
	Balances  []GenesisBalance `toml:"Balances"`
}

// RelayFee is the per-chain fee charged when a repayment or liquidation is
// relayed back to the collateral ledger.
type RelayFee struct {
	ChainID uint32 `toml:"ChainID"`
	Fee     uint64 `toml:"Fee"`
}

// GenesisBalance credits a native balance at initialisation.
type GenesisBalance struct {
	Address string `toml:"Address"`
	Amount  uint64 `toml:"Amount"`
}

// Load loads the configuration from the given path. A missing file is
// replaced with a default configuration and a fresh administrator keystore.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := defaults()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		cfg.Environment = env
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
}

func defaults() *Config {
	return &Config{
		RPCAddress:         ":8080",
		MetricsAddress:     ":9090",
		DataDir:            "./xlend-data",
		DatabaseBackend:    "leveldb",
		Environment:        "dev",
		RPCReadTimeout:     10,
		RPCWriteTimeout:    10,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
		EventLogCapacity:   10_000,
		Lending: Lending{
			MinRate:                    100,
			MaxRate:                    2_000,
			PenaltyRate:                10,
			PenaltyCapDays:             30,
			CommissionRate:             10,
			RepaymentCycleSeconds:      30 * 86_400,
			LiquidationDeadlineSeconds: 60 * 86_400,
			Witnesses:                  []string{},
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := defaults()
	cfg.AdminKeystorePath = keystorePath
	cfg.Lending.Admin = key.PubKey().Address().String()
	applyEnv(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "admin.keystore")
}
