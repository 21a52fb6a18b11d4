package escrow

import (
	"context"
	"fmt"

	"github.com/tonpost/tonpost/internal/ton"
)

// WalletStrategy escrows funds in a fresh custodial wallet per deal. The
// wallet's seed is AES-encrypted and stored with the payment; release and
// refund empty the wallet with a carry-all transfer.
type WalletStrategy struct {
	ton *ton.Client
}

// Compile-time interface check
var _ Strategy = (*WalletStrategy)(nil)

// NewWalletStrategy returns the per-deal wallet custody strategy.
func NewWalletStrategy(client *ton.Client) *WalletStrategy {
	return &WalletStrategy{ton: client}
}

func (s *WalletStrategy) Initiate(ctx context.Context, dealID, advertiser, beneficiary string, amount int64) (*Escrow, error) {
	addr, encryptedSeed, err := s.ton.GenerateEscrowWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("initiate escrow for deal %s: %w", dealID, err)
	}

	return &Escrow{
		DealID:        dealID,
		Address:       addr,
		EncryptedSeed: encryptedSeed,
		Amount:        amount,
		DepositLink:   DepositLink(addr, amount, dealID, nil),
	}, nil
}

func (s *WalletStrategy) CheckFunded(ctx context.Context, e *Escrow) (bool, error) {
	return s.ton.CheckPaymentReceived(ctx, e.Address, e.Amount), nil
}

func (s *WalletStrategy) Release(ctx context.Context, e *Escrow, beneficiary string) (*ton.TransferOutcome, error) {
	return s.ton.ReleaseFunds(ctx, e.EncryptedSeed, beneficiary)
}

func (s *WalletStrategy) Refund(ctx context.Context, e *Escrow, advertiser string) (*ton.TransferOutcome, error) {
	return s.ton.RefundFunds(ctx, e.EncryptedSeed, advertiser)
}
