package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`

	ServiceName string `toml:"ServiceName"`
	Environment string `toml:"Environment"`

	// OwnerAccount is the privileged authority allowed to create sales and
	// change their configuration.
	OwnerAccount string `toml:"OwnerAccount"`
	// RPCAuthToken guards the privileged RPC methods. Empty disables them.
	RPCAuthToken string `toml:"RPCAuthToken"`

	// JoinFee is the exact fee a referral join must pay, in deposit-token
	// base units. Zero means joining is free.
	JoinFee string `toml:"JoinFee"`
	// ReferralFees is the default commission schedule in basis points, one
	// entry per referral level.
	ReferralFees []uint64 `toml:"ReferralFees"`

	// WrappedNativeToken is the fungible token native deposits convert to.
	WrappedNativeToken string `toml:"WrappedNativeToken"`

	// OracleURL and LedgerURL point at the staking oracle and token ledger
	// services. Empty values leave the corresponding adapter unwired.
	OracleURL string `toml:"OracleURL"`
	LedgerURL string `toml:"LedgerURL"`
}

// Load loads the configuration from the given path, creating a default
// file when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./launchpad-data"
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "launchpadd"
	}
	if strings.TrimSpace(c.JoinFee) == "" {
		c.JoinFee = "0"
	}
	if len(c.ReferralFees) == 0 {
		c.ReferralFees = []uint64{500, 200, 100}
	}
	if strings.TrimSpace(c.WrappedNativeToken) == "" {
		c.WrappedNativeToken = "wnative"
	}
}

// Validate checks the structural invariants of the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OwnerAccount) == "" {
		return fmt.Errorf("config: OwnerAccount is required")
	}
	if len(c.ReferralFees) != 3 {
		return fmt.Errorf("config: ReferralFees must have exactly 3 entries, got %d", len(c.ReferralFees))
	}
	for _, fee := range c.ReferralFees {
		if fee > 10_000 {
			return fmt.Errorf("config: referral fee %d exceeds 10000 basis points", fee)
		}
	}
	return nil
}

// createDefault saves a default configuration file and returns an error:
// the owner account is left blank on purpose, so the service refuses to
// start until the operator fills it in.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("config: wrote default configuration to %s; set OwnerAccount before starting", path)
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
