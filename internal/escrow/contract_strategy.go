package escrow

import (
	"context"
	"fmt"

	"github.com/tonpost/tonpost/internal/ton"
)

// Gas budgets for contract operation messages, in nanoton. Excess is
// returned by the contract.
const (
	opGas      = 50_000_000 // 0.05 TON per operation message
	depositGas = 50_000_000 // Added on top of the escrowed amount
)

// ContractStrategy escrows funds in a shared on-chain contract. The master
// wallet signs operation messages; the advertiser deposits straight into the
// contract with a Deposit payload.
type ContractStrategy struct {
	ton      *ton.Client
	contract string
}

// Compile-time interface check
var _ Strategy = (*ContractStrategy)(nil)

// NewContractStrategy returns the shared-contract custody strategy.
func NewContractStrategy(client *ton.Client, contractAddr string) (*ContractStrategy, error) {
	if _, err := ton.ParseAddress(contractAddr); err != nil {
		return nil, fmt.Errorf("%w: contract address %q", ton.ErrInvalidAddress, contractAddr)
	}
	return &ContractStrategy{ton: client, contract: contractAddr}, nil
}

func (s *ContractStrategy) Initiate(ctx context.Context, dealID, advertiser, beneficiary string, amount int64) (*Escrow, error) {
	adv, err := ton.ParseAddress(advertiser)
	if err != nil {
		return nil, fmt.Errorf("%w: advertiser %q", ton.ErrInvalidAddress, advertiser)
	}
	ben, err := ton.ParseAddress(beneficiary)
	if err != nil {
		return nil, fmt.Errorf("%w: beneficiary %q", ton.ErrInvalidAddress, beneficiary)
	}

	key := DealKey(dealID)
	init := InitEscrowMessage(key, adv, ben, amount)
	if _, err := s.ton.SendFromMaster(ctx, s.contract, opGas, init); err != nil {
		return nil, fmt.Errorf("init escrow for deal %s: %w", dealID, err)
	}

	// The deposit must cover the escrowed amount plus message gas.
	return &Escrow{
		DealID:      dealID,
		Address:     s.contract,
		Amount:      amount,
		DepositLink: DepositLink(s.contract, amount+depositGas, "", DepositMessage()),
	}, nil
}

// CheckFunded requires both a FUNDED status and a matching deal key. The
// contract is shared; status alone could belong to whichever deal was
// initialized last.
func (s *ContractStrategy) CheckFunded(ctx context.Context, e *Escrow) (bool, error) {
	status, err := s.ContractStatus(ctx)
	if err != nil {
		return false, err
	}
	if status != ContractFunded {
		return false, nil
	}

	dealKey, err := s.ContractDealID(ctx)
	if err != nil {
		return false, err
	}
	return dealKey == DealKey(e.DealID), nil
}

// ContractStatus reads the getStatus getter.
func (s *ContractStrategy) ContractStatus(ctx context.Context) (int64, error) {
	v, err := s.ton.RunGetInt(ctx, s.contract, "getStatus")
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

// ContractDealID reads the getDealId getter as the 64-bit deal key.
func (s *ContractStrategy) ContractDealID(ctx context.Context) (uint64, error) {
	v, err := s.ton.RunGetInt(ctx, s.contract, "getDealId")
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// ContractAmount reads the getAmount getter in nanoton.
func (s *ContractStrategy) ContractAmount(ctx context.Context) (int64, error) {
	v, err := s.ton.RunGetInt(ctx, s.contract, "getAmount")
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

func (s *ContractStrategy) Release(ctx context.Context, e *Escrow, beneficiary string) (*ton.TransferOutcome, error) {
	return s.ton.SendFromMaster(ctx, s.contract, opGas, ReleaseMessage())
}

func (s *ContractStrategy) Refund(ctx context.Context, e *Escrow, advertiser string) (*ton.TransferOutcome, error) {
	return s.ton.SendFromMaster(ctx, s.contract, opGas, RefundMessage())
}
