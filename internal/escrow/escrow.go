// Package escrow abstracts fund custody for deals.
//
// Two strategies exist: per-deal custodial wallets (the default) and a
// shared on-chain escrow contract. The deal and payment layers only ever
// see the Strategy interface; which one runs is a startup decision.
package escrow

import (
	"context"

	"github.com/tonpost/tonpost/internal/ton"
)

// Escrow describes where a deal's funds live and how to deposit into it.
type Escrow struct {
	DealID        string
	Address       string // Deposit address (escrow wallet or shared contract)
	EncryptedSeed string // Wallet strategy only; empty for contract custody
	Amount        int64  // Expected deposit in nanoton
	DepositLink   string // ton:// deeplink for the advertiser's wallet app
}

// Strategy is the custody contract the payment layer programs against.
type Strategy interface {
	// Initiate prepares custody for a deal and returns deposit instructions.
	Initiate(ctx context.Context, dealID, advertiser, beneficiary string, amount int64) (*Escrow, error)

	// CheckFunded reports whether the expected deposit has arrived.
	CheckFunded(ctx context.Context, e *Escrow) (bool, error)

	// Release pays escrowed funds out to the beneficiary.
	Release(ctx context.Context, e *Escrow, beneficiary string) (*ton.TransferOutcome, error)

	// Refund returns escrowed funds to the advertiser.
	Refund(ctx context.Context, e *Escrow, advertiser string) (*ton.TransferOutcome, error)
}
