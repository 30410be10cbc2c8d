package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xlend/crypto"
)

func addressString(b byte) string {
	var raw [20]byte
	raw[0] = 0x07
	raw[19] = b
	return crypto.FromBytes20(raw).String()
}

func TestLoadCreatesDefault(t *testing.T) {
	t.Setenv(EnvEnvironment, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "admin.keystore"), cfg.AdminKeystorePath)
	require.FileExists(t, path)
	require.FileExists(t, cfg.AdminKeystorePath)

	key, err := crypto.LoadFromKeystore(cfg.AdminKeystorePath, "")
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().String(), cfg.Lending.Admin)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Lending.Admin, reloaded.Lending.Admin)
	require.Equal(t, "leveldb", reloaded.DatabaseBackend)
}

func TestLoadParsesLendingTable(t *testing.T) {
	t.Setenv(EnvEnvironment, "staging")
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCAddress = "127.0.0.1:9000"
DataDir = "./data"
DatabaseBackend = "bolt"
LogFile = "./xlend.log"

[lending]
Admin = "` + addressString(1) + `"
Witnesses = ["` + addressString(2) + `", "` + addressString(3) + `", "` + addressString(4) + `"]
MinRate = 50
MaxRate = 900
PenaltyRate = 12
PenaltyCapDays = 7
CommissionRate = 15
RepaymentCycleSeconds = 86400
LiquidationDeadlineSeconds = 172800

[[lending.RelayFees]]
ChainID = 1
Fee = 500

[[lending.Balances]]
Address = "` + addressString(9) + `"
Amount = 1000000
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, "bolt", cfg.DatabaseBackend)
	require.Equal(t, 40, cfg.RateLimitBurst, "unset keys keep defaults")

	genesis, err := cfg.Genesis()
	require.NoError(t, err)
	require.Len(t, genesis.Witnesses, 3)
	require.Equal(t, uint64(500), genesis.RelayFees[1])
	require.Equal(t, uint64(900), genesis.Config.MaxRate)
	require.Equal(t, uint64(172800), genesis.Config.LiquidationDeadline)

	var holder [20]byte
	holder[0], holder[19] = 0x07, 9
	require.Equal(t, uint64(1_000_000), genesis.Balances[holder])
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"unknown key":    "Bogus = 1\n[lending]\nAdmin = \"" + addressString(1) + "\"\n",
		"bad admin":      "[lending]\nAdmin = \"nope\"\n",
		"rate bounds":    "[lending]\nAdmin = \"" + addressString(1) + "\"\nMinRate = 10\nMaxRate = 5\n",
		"bad backend":    "DatabaseBackend = \"redis\"\n[lending]\nAdmin = \"" + addressString(1) + "\"\n",
		"dup witness":    "[lending]\nAdmin = \"" + addressString(1) + "\"\nWitnesses = [\"" + addressString(2) + "\", \"" + addressString(2) + "\"]\n",
		"foreign prefix": "[lending]\nAdmin = \"" + crypto.NewAddress(crypto.ForeignPrefix, make([]byte, 20)).String() + "\"\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
