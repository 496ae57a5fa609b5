// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger tracks ownership of the pool's position tokens: LP
// shares, longs, shorts, and withdrawal shares, each a distinct
// asset ID in one multi-token book with per-asset approvals.
package ledger

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAmount            = errors.New("zero amount")
)

type assetKey = [32]byte

// Ledger is an in-memory multi-token book.
type Ledger struct {
	mu sync.RWMutex

	balances map[assetKey]map[common.Address]*uint256.Int
	supplies map[assetKey]*uint256.Int

	// approvals[owner][spender] applies across every asset, the way
	// operator approval works for multi-token standards.
	approvals map[common.Address]map[common.Address]bool
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:  make(map[assetKey]map[common.Address]*uint256.Int),
		supplies:  make(map[assetKey]*uint256.Int),
		approvals: make(map[common.Address]map[common.Address]bool),
	}
}

func key(id *uint256.Int) assetKey { return id.Bytes32() }

// Mint credits newly issued tokens to an account.
func (l *Ledger) Mint(id *uint256.Int, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(id)
	book, ok := l.balances[k]
	if !ok {
		book = make(map[common.Address]*uint256.Int)
		l.balances[k] = book
	}
	credit(book, to, amount)
	supply, ok := l.supplies[k]
	if !ok {
		supply = uint256.NewInt(0)
		l.supplies[k] = supply
	}
	supply.Add(supply, amount)
	return nil
}

// Burn destroys tokens held by an account.
func (l *Ledger) Burn(id *uint256.Int, from common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	k := key(id)
	book := l.balances[k]
	if book == nil {
		return ErrInsufficientBalance
	}
	if err := debit(book, from, amount); err != nil {
		return err
	}
	l.supplies[k].Sub(l.supplies[k], amount)
	return nil
}

// Transfer moves tokens between accounts on the caller's authority.
func (l *Ledger) Transfer(id *uint256.Int, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(id, from, to, amount)
}

// TransferFrom moves tokens on behalf of an approved operator.
func (l *Ledger) TransferFrom(id *uint256.Int, operator, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if operator != from && !l.approvals[from][operator] {
		return ErrInsufficientAllowance
	}
	return l.transfer(id, from, to, amount)
}

func (l *Ledger) transfer(id *uint256.Int, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	book := l.balances[key(id)]
	if book == nil {
		return ErrInsufficientBalance
	}
	if err := debit(book, from, amount); err != nil {
		return err
	}
	credit(book, to, amount)
	return nil
}

// SetApproval grants or revokes an operator over all of the owner's
// assets.
func (l *Ledger) SetApproval(owner, operator common.Address, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ops, ok := l.approvals[owner]
	if !ok {
		ops = make(map[common.Address]bool)
		l.approvals[owner] = ops
	}
	ops[operator] = approved
}

// IsApproved reports whether an operator may move the owner's tokens.
func (l *Ledger) IsApproved(owner, operator common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.approvals[owner][operator]
}

// BalanceOf reports an account's holdings of one asset.
func (l *Ledger) BalanceOf(id *uint256.Int, owner common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if book := l.balances[key(id)]; book != nil {
		if b, ok := book[owner]; ok {
			return new(uint256.Int).Set(b)
		}
	}
	return uint256.NewInt(0)
}

// TotalSupply reports the outstanding amount of one asset.
func (l *Ledger) TotalSupply(id *uint256.Int) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if s, ok := l.supplies[key(id)]; ok {
		return new(uint256.Int).Set(s)
	}
	return uint256.NewInt(0)
}

func credit(book map[common.Address]*uint256.Int, a common.Address, amount *uint256.Int) {
	b, ok := book[a]
	if !ok {
		b = uint256.NewInt(0)
		book[a] = b
	}
	b.Add(b, amount)
}

func debit(book map[common.Address]*uint256.Int, a common.Address, amount *uint256.Int) error {
	b, ok := book[a]
	if !ok || b.Lt(amount) {
		return ErrInsufficientBalance
	}
	b.Sub(b, amount)
	return nil
}
