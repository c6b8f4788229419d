// Package venue provides the custody ledger and swap venues used to settle
// triggered orders.
package venue

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/raykavin/stopkeep/core"
)

// ---------------------
// Ledger
// ---------------------

type balanceKey struct {
	Owner common.Address
	Asset common.Address
}

type allowanceKey struct {
	Owner   common.Address
	Spender common.Address
	Asset   common.Address
}

// ledger holds balances and allowances. It is the unit that vault
// transactions snapshot and restore.
type ledger struct {
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
}

func newLedger() *ledger {
	return &ledger{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// clone deep-copies the ledger, values included
func (l *ledger) clone() *ledger {
	c := &ledger{
		balances:   make(map[balanceKey]*big.Int, len(l.balances)),
		allowances: make(map[allowanceKey]*big.Int, len(l.allowances)),
	}
	for k, v := range l.balances {
		c.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range l.allowances {
		c.allowances[k] = new(big.Int).Set(v)
	}
	return c
}

func (l *ledger) balance(owner, asset common.Address) *big.Int {
	if v, ok := l.balances[balanceKey{owner, asset}]; ok {
		return v
	}
	return big.NewInt(0)
}

func (l *ledger) allowance(owner, spender, asset common.Address) *big.Int {
	if v, ok := l.allowances[allowanceKey{owner, spender, asset}]; ok {
		return v
	}
	return big.NewInt(0)
}

func (l *ledger) credit(owner, asset common.Address, amount *big.Int) {
	key := balanceKey{owner, asset}
	if v, ok := l.balances[key]; ok {
		v.Add(v, amount)
		return
	}
	l.balances[key] = new(big.Int).Set(amount)
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func (l *ledger) transfer(from, to, asset common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: transfer amount must be positive", core.ErrInvalidAmount)
	}

	balance := l.balance(from, asset)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s holds %s of %s, needs %s",
			core.ErrInsufficientFunds, from.Hex(), balance.String(), asset.Hex(), amount.String())
	}

	balance.Sub(balance, amount)
	l.balances[balanceKey{from, asset}] = balance
	l.credit(to, asset, amount)
	return nil
}

func (l *ledger) approve(owner, spender, asset common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: allowance must not be negative", core.ErrInvalidAmount)
	}
	l.allowances[allowanceKey{owner, spender, asset}] = new(big.Int).Set(amount)
	return nil
}

func (l *ledger) transferFrom(spender, owner, to, asset common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: transfer amount must be positive", core.ErrInvalidAmount)
	}

	allowance := l.allowance(owner, spender, asset)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: spender %s allowed %s of %s, needs %s",
			core.ErrInsufficientFunds, spender.Hex(), allowance.String(), asset.Hex(), amount.String())
	}

	if err := l.transfer(owner, to, asset, amount); err != nil {
		return err
	}

	allowance.Sub(allowance, amount)
	l.allowances[allowanceKey{owner, spender, asset}] = allowance
	return nil
}

// ---------------------
// Vault
// ---------------------

// Vault is an in-memory custody ledger with transactional sessions. All
// operations on the vault itself run as their own transaction; InTx groups
// several operations so they commit or roll back together.
type Vault struct {
	mu     sync.Mutex
	ledger *ledger
	log    core.Logger
}

// VaultOption defines an option function to configure the vault
type VaultOption func(*Vault)

// WithFunds credits an account with an initial balance
func WithFunds(owner, asset common.Address, amount *big.Int) VaultOption {
	return func(v *Vault) {
		if validAmount(amount) {
			v.ledger.credit(owner, asset, amount)
		}
	}
}

// NewVault creates an empty custody ledger
func NewVault(log core.Logger, options ...VaultOption) *Vault {
	vault := &Vault{
		ledger: newLedger(),
		log:    log.WithField("component", "vault"),
	}
	for _, option := range options {
		option(vault)
	}
	return vault
}

// Fund credits an account outside any transaction
func (v *Vault) Fund(owner, asset common.Address, amount *big.Int) error {
	if !validAmount(amount) {
		return fmt.Errorf("%w: funding amount must be positive", core.ErrInvalidAmount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.ledger.credit(owner, asset, amount)
	return nil
}

// Transfer moves amount of asset between two accounts
func (v *Vault) Transfer(from, to, asset common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.transfer(from, to, asset, amount)
}

// Approve sets the exact allowance spender may pull from owner
func (v *Vault) Approve(owner, spender, asset common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.approve(owner, spender, asset, amount)
}

// TransferFrom moves amount of asset out of owner using spender's allowance
func (v *Vault) TransferFrom(spender, owner, to, asset common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ledger.transferFrom(spender, owner, to, asset, amount)
}

// Balance returns the current balance of asset held by owner
func (v *Vault) Balance(owner, asset common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.ledger.balance(owner, asset)), nil
}

// Allowance returns what spender may still pull from owner
func (v *Vault) Allowance(owner, spender, asset common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.ledger.allowance(owner, spender, asset)), nil
}

// InTx runs fn against a transactional session. The ledger is snapshotted
// first; when fn returns an error every effect is rolled back and the error
// is returned unchanged. The vault stays locked for the whole transaction,
// so fn must use the session it is given, never the vault itself.
func (v *Vault) InTx(ctx context.Context, fn func(ops core.VaultOps) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	snapshot := v.ledger.clone()
	if err := fn(&txSession{ledger: v.ledger}); err != nil {
		v.ledger = snapshot
		v.log.WithError(err).Debug("transaction rolled back")
		return err
	}

	return nil
}

// txSession exposes ledger operations inside a vault transaction
type txSession struct {
	ledger *ledger
}

func (s *txSession) Transfer(from, to, asset common.Address, amount *big.Int) error {
	return s.ledger.transfer(from, to, asset, amount)
}

func (s *txSession) Approve(owner, spender, asset common.Address, amount *big.Int) error {
	return s.ledger.approve(owner, spender, asset, amount)
}

func (s *txSession) TransferFrom(spender, owner, to, asset common.Address, amount *big.Int) error {
	return s.ledger.transferFrom(spender, owner, to, asset, amount)
}

func (s *txSession) Balance(owner, asset common.Address) (*big.Int, error) {
	return new(big.Int).Set(s.ledger.balance(owner, asset)), nil
}

func (s *txSession) Allowance(owner, spender, asset common.Address) (*big.Int, error) {
	return new(big.Int).Set(s.ledger.allowance(owner, spender, asset)), nil
}
