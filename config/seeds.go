package config

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Seeds describes the initial ledger contents applied exactly once, the
// first time a node starts with an empty data directory.
type Seeds struct {
	Roles       []RoleSeed    `yaml:"roles"`
	Blacklist   []string      `yaml:"blacklist"`
	Balances    []BalanceSeed `yaml:"balances"`
	CashbackBps uint64        `yaml:"cashbackRate"`
}

type RoleSeed struct {
	Role    string `yaml:"role"`
	Address string `yaml:"address"`
}

type BalanceSeed struct {
	Address string `yaml:"address"`
	Amount  string `yaml:"amount"`
}

// ParseAmount converts the seed's decimal string into a balance value.
func (b BalanceSeed) ParseAmount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(b.Amount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("seed balance for %s: invalid amount %q", b.Address, b.Amount)
	}
	return amount, nil
}

// LoadSeeds reads the YAML seed file. A missing file yields empty seeds
// rather than an error so a bare node can start with nothing provisioned.
func LoadSeeds(path string) (*Seeds, error) {
	if path == "" {
		return &Seeds{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Seeds{}, nil
		}
		return nil, err
	}
	seeds := &Seeds{}
	if err := yaml.Unmarshal(raw, seeds); err != nil {
		return nil, fmt.Errorf("parse seeds %s: %w", path, err)
	}
	return seeds, nil
}
