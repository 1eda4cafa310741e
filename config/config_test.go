package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TokenSymbol != "BRLC" {
		t.Fatalf("unexpected default token symbol %q", cfg.TokenSymbol)
	}
	if cfg.RPCAddress != ":8080" {
		t.Fatalf("unexpected default rpc address %q", cfg.RPCAddress)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.TokenSymbol != cfg.TokenSymbol || reloaded.DataDir != cfg.DataDir {
		t.Fatalf("reloaded config mismatch: %+v vs %+v", reloaded, cfg)
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	raw := "TokenSymbol = \"BRLC\"\nNoSuchField = true\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("TokenSymbol = \"usdx\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("rate limit defaults not applied: %+v", cfg.RateLimit)
	}
	if cfg.ServiceName != "cashierd" {
		t.Fatalf("service name default not applied: %q", cfg.ServiceName)
	}
}

func TestLoadSeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seeds.yaml")

	seeds, err := LoadSeeds(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("load missing seeds: %v", err)
	}
	if len(seeds.Roles) != 0 || seeds.CashbackBps != 0 {
		t.Fatalf("missing seed file should yield empty seeds: %+v", seeds)
	}

	contents := "roles:\n  - role: ROLE_CASHIER\n    address: addr1\nbalances:\n  - address: addr2\n    amount: \"1000\"\ncashbackRate: 150\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write seeds: %v", err)
	}
	seeds, err = LoadSeeds(path)
	if err != nil {
		t.Fatalf("load seeds: %v", err)
	}
	if len(seeds.Roles) != 1 || seeds.Roles[0].Role != "ROLE_CASHIER" {
		t.Fatalf("unexpected roles: %+v", seeds.Roles)
	}
	if seeds.CashbackBps != 150 {
		t.Fatalf("unexpected cashback rate %d", seeds.CashbackBps)
	}
	amount, err := seeds.Balances[0].ParseAmount()
	if err != nil {
		t.Fatalf("parse amount: %v", err)
	}
	if amount.String() != "1000" {
		t.Fatalf("unexpected amount %s", amount)
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	seed := BalanceSeed{Address: "addr", Amount: "-5"}
	if _, err := seed.ParseAmount(); err == nil {
		t.Fatal("expected error for negative amount")
	}
	seed.Amount = "abc"
	if _, err := seed.ParseAmount(); err == nil {
		t.Fatal("expected error for non-numeric amount")
	}
}
