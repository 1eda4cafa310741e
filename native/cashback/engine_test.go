package cashback

import (
	"errors"
	"math/big"
	"testing"

	"pixcashier/core/events"
	"pixcashier/crypto"
	nativecommon "pixcashier/native/common"
	"pixcashier/state"
	"pixcashier/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func testAuthID(fill byte) [32]byte {
	var id [32]byte
	for i := range id {
		id[i] = fill
	}
	return id
}

type testEnv struct {
	engine     *Engine
	manager    *state.Manager
	custody    *state.TokenCustody
	log        *events.Log
	controller [20]byte
	reserve    [20]byte
}

func newTestEnv(t *testing.T, reserveFunds int64) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	if err := manager.Initialize("BRLC"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	reserve := crypto.DeriveModuleAddress("cashback/reserve")
	custody := state.NewTokenCustody(manager, crypto.DeriveModuleAddress("cashier/vault"))
	if reserveFunds > 0 {
		if err := custody.Mint(reserve, big.NewInt(reserveFunds)); err != nil {
			t.Fatalf("fund reserve: %v", err)
		}
	}
	controller := testAddress(0xC7)
	if err := manager.GrantRole(RoleController, controller[:]); err != nil {
		t.Fatalf("grant role: %v", err)
	}
	log := events.NewLog()

	engine := NewEngine()
	engine.SetState(manager)
	engine.SetCustody(custody, reserve)
	engine.SetEmitter(log)
	engine.SetPauses(manager)

	return &testEnv{engine: engine, manager: manager, custody: custody, log: log, controller: controller, reserve: reserve}
}

func TestRateDefaultsToZero(t *testing.T) {
	env := newTestEnv(t, 0)
	rate, err := env.engine.Rate()
	if err != nil || rate != 0 {
		t.Fatalf("rate = %d err=%v", rate, err)
	}
}

func TestSeedRateInstallsInitialMultiplier(t *testing.T) {
	env := newTestEnv(t, 0)
	if err := env.engine.SeedRate(300); err != nil {
		t.Fatalf("seed rate: %v", err)
	}
	rate, err := env.engine.Rate()
	if err != nil || rate != 300 {
		t.Fatalf("rate = %d err=%v", rate, err)
	}
	if entries := env.log.Entries(); len(entries) != 0 {
		t.Fatalf("seeding emitted %d events, want none", len(entries))
	}
}

func TestSetRateEmitsOldAndNew(t *testing.T) {
	env := newTestEnv(t, 0)
	if err := env.engine.SetRate(env.controller, 200); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := env.engine.SetRate(env.controller, 150); err != nil {
		t.Fatalf("overwrite rate: %v", err)
	}
	rate, _ := env.engine.Rate()
	if rate != 150 {
		t.Fatalf("rate = %d, want 150", rate)
	}
	entries := env.log.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d events", len(entries))
	}
	last := entries[1]
	if last.Type != events.TypeCashbackRateUpdated || last.Attributes["oldRate"] != "200" || last.Attributes["newRate"] != "150" {
		t.Fatalf("unexpected event %+v", last)
	}
}

func TestSetRateGuards(t *testing.T) {
	env := newTestEnv(t, 0)
	outsider := testAddress(0x05)
	if err := env.engine.SetRate(outsider, 10); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := env.manager.SetPaused("cashback", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := env.engine.SetRate(env.controller, 10); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}

func TestSendCashbackPaysOut(t *testing.T) {
	env := newTestEnv(t, 5_000)
	if err := env.engine.SetRate(env.controller, 200); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	recipient := testAddress(0xB1)
	sent, amount, err := env.engine.SendCashback(env.controller, "brlc", recipient, big.NewInt(10), testAuthID(0x01))
	if err != nil || !sent {
		t.Fatalf("send: sent=%v err=%v", sent, err)
	}
	// rate 200 * amount 10 = 2000 base units.
	if amount.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("amount = %s, want 2000", amount)
	}
	balance, _ := env.custody.BalanceOf(recipient)
	if balance.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("recipient balance = %s", balance)
	}
	entries := env.log.Entries()
	last := entries[len(entries)-1]
	if last.Type != events.TypeCashbackSent {
		t.Fatalf("last event = %s", last.Type)
	}
	if last.Attributes["reserve"] != "3000" {
		t.Fatalf("post-transfer reserve = %s, want 3000", last.Attributes["reserve"])
	}
}

func TestSendCashbackBypassOnShortReserve(t *testing.T) {
	env := newTestEnv(t, 1_999)
	if err := env.engine.SetRate(env.controller, 200); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	recipient := testAddress(0xB1)
	sent, amount, err := env.engine.SendCashback(env.controller, "BRLC", recipient, big.NewInt(10), testAuthID(0x02))
	if err != nil {
		t.Fatalf("bypass must not error: %v", err)
	}
	if sent {
		t.Fatal("no transfer expected on bypass")
	}
	if amount.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("computed amount = %s, want 2000", amount)
	}
	balance, _ := env.custody.BalanceOf(recipient)
	if balance.Sign() != 0 {
		t.Fatalf("recipient balance = %s, want 0", balance)
	}
	entries := env.log.Entries()
	last := entries[len(entries)-1]
	if last.Type != events.TypeCashbackBypassed {
		t.Fatalf("last event = %s", last.Type)
	}
	if last.Attributes["reserve"] != "1999" {
		t.Fatalf("reserve attribute = %s", last.Attributes["reserve"])
	}
}

func TestSendCashbackValidation(t *testing.T) {
	env := newTestEnv(t, 100)
	recipient := testAddress(0xB1)
	auth := testAuthID(0x03)

	if _, _, err := env.engine.SendCashback(recipient, "BRLC", recipient, big.NewInt(1), auth); !errors.Is(err, nativecommon.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, _, err := env.engine.SendCashback(env.controller, "USDC", recipient, big.NewInt(1), auth); !errors.Is(err, ErrUnsupportedToken) {
		t.Fatalf("expected unsupported token, got %v", err)
	}
	if _, _, err := env.engine.SendCashback(env.controller, "BRLC", [20]byte{}, big.NewInt(1), auth); !errors.Is(err, ErrZeroRecipient) {
		t.Fatalf("expected zero recipient, got %v", err)
	}
	if _, _, err := env.engine.SendCashback(env.controller, "BRLC", recipient, big.NewInt(-5), auth); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestSendCashbackZeroRate(t *testing.T) {
	env := newTestEnv(t, 100)
	recipient := testAddress(0xB1)
	sent, amount, err := env.engine.SendCashback(env.controller, "BRLC", recipient, big.NewInt(10), testAuthID(0x04))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent {
		t.Fatal("zero rate must not transfer")
	}
	if amount.Sign() != 0 {
		t.Fatalf("amount = %s, want 0", amount)
	}
	// A zero payout still records a sent event with the untouched reserve.
	entries := env.log.Entries()
	last := entries[len(entries)-1]
	if last.Type != events.TypeCashbackSent || last.Attributes["reserve"] != "100" {
		t.Fatalf("unexpected event %+v", last)
	}
}

func TestSendCashbackOverflow(t *testing.T) {
	env := newTestEnv(t, 100)
	if err := env.engine.SetRate(env.controller, ^uint64(0)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 250)
	if _, _, err := env.engine.SendCashback(env.controller, "BRLC", testAddress(0xB1), huge, testAuthID(0x05)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	over := new(big.Int).Lsh(big.NewInt(1), 300)
	if _, _, err := env.engine.SendCashback(env.controller, "BRLC", testAddress(0xB1), over, testAuthID(0x06)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected 256-bit conversion overflow, got %v", err)
	}
}
