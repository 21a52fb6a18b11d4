package ton

import (
	"context"
	"fmt"
	"math/big"

	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	tonapi "github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// liteChain implements ChainAPI against real lite servers.
type liteChain struct {
	api     tonapi.APIClientWrapped
	testnet bool
}

// Compile-time interface check
var _ ChainAPI = (*liteChain)(nil)

// Connect dials the lite servers listed in the global config at configURL
// and returns a ChainAPI backed by them.
func Connect(ctx context.Context, configURL string, testnet bool) (ChainAPI, error) {
	pool := liteclient.NewConnectionPool()

	cfg, err := liteclient.GetConfigFromUrl(ctx, configURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch global config: %v", ErrNetwork, err)
	}
	if err := pool.AddConnectionsFromConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%w: connect lite servers: %v", ErrNetwork, err)
	}

	api := tonapi.NewAPIClient(pool, tonapi.ProofCheckPolicyFast).WithRetry()
	return &liteChain{api: api, testnet: testnet}, nil
}

func (c *liteChain) Balance(ctx context.Context, addr string) (int64, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return 0, err
	}

	acc, err := c.api.GetAccount(ctx, block, a)
	if err != nil {
		return 0, err
	}
	if !acc.IsActive || acc.State == nil {
		return 0, nil
	}
	return acc.State.Balance.Nano().Int64(), nil
}

func (c *liteChain) Seqno(ctx context.Context, addr string) (uint32, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return 0, err
	}

	res, err := c.api.RunGetMethod(ctx, block, a, "seqno")
	if err != nil {
		// Uninitialized wallets have no code yet; their first transfer
		// deploys them at seqno 0.
		return 0, nil
	}
	v, err := res.Int(0)
	if err != nil {
		return 0, err
	}
	return uint32(v.Uint64()), nil
}

func (c *liteChain) WalletAddress(seed []string) (string, error) {
	w, err := wallet.FromSeed(c.api, seed, wallet.V4R2)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	addr := w.WalletAddress().Bounce(false).Testnet(c.testnet)
	return addr.String(), nil
}

func (c *liteChain) SendAll(ctx context.Context, seed []string, dst string, body *cell.Cell) error {
	return c.send(ctx, seed, dst, 0, 128, body)
}

func (c *liteChain) Send(ctx context.Context, seed []string, dst string, amount int64, body *cell.Cell) error {
	// Mode 3: pay fees from the sender balance, ignore action errors.
	return c.send(ctx, seed, dst, amount, 3, body)
}

func (c *liteChain) send(ctx context.Context, seed []string, dst string, amount int64, mode uint8, body *cell.Cell) error {
	w, err := wallet.FromSeed(c.api, seed, wallet.V4R2)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	to, err := ParseAddress(dst)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, dst)
	}

	msg := &wallet.Message{
		Mode: mode,
		InternalMessage: &tlb.InternalMessage{
			IHRDisabled: true,
			Bounce:      false,
			DstAddr:     to,
			Amount:      tlb.FromNanoTON(big.NewInt(amount)),
			Body:        body,
		},
	}

	// Confirmation is handled by the caller's seqno polling, so don't
	// block here waiting for the message to land.
	return w.Send(ctx, msg, false)
}

func (c *liteChain) RunGetInt(ctx context.Context, addr, method string) (*big.Int, error) {
	a, err := ParseAddress(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	block, err := c.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, err
	}

	res, err := c.api.RunGetMethod(ctx, block, a, method)
	if err != nil {
		return nil, err
	}
	return res.Int(0)
}
