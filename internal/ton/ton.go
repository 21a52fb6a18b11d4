// Package ton handles all blockchain interactions for TON transfers.
//
// Escrow wallets are custodial V4R2 wallets generated per deal; their seed
// phrases are AES-encrypted at rest. A single master wallet signs shared
// contract operations and acts as a fallback signer for legacy escrows that
// carry no encrypted seed.
package ton

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tonpost/tonpost/internal/logging"
	"github.com/tonpost/tonpost/internal/retry"
)

// -----------------------------------------------------------------------------
// Errors - typed errors for programmatic handling
// -----------------------------------------------------------------------------

var (
	ErrKeyGeneration     = errors.New("ton: key generation failed")
	ErrInvalidAddress    = errors.New("ton: invalid address")
	ErrInvalidKey        = errors.New("ton: invalid encryption key")
	ErrDecrypt           = errors.New("ton: seed decryption failed")
	ErrInsufficientFunds = errors.New("ton: escrow wallet has zero balance")
	ErrNetwork           = errors.New("ton: network request failed")
	ErrReleaseTimeout    = errors.New("ton: transfer not confirmed within polling window")
)

// TransferError wraps transfer failures with context
type TransferError struct {
	Op   string // Operation that failed
	From string // Sender address if known
	Err  error  // Underlying error
}

func (e *TransferError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("ton: %s failed (from: %s): %v", e.Op, e.From, e.Err)
	}
	return fmt.Sprintf("ton: %s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// -----------------------------------------------------------------------------
// Interfaces - for testability and flexibility
// -----------------------------------------------------------------------------

// ChainAPI abstracts the lite-server client. All methods take and return
// plain values so services above can be tested against a fake chain.
type ChainAPI interface {
	// Balance returns the account balance in nanoton. Uninitialized
	// accounts report zero.
	Balance(ctx context.Context, addr string) (int64, error)

	// Seqno returns the wallet's current sequence number, zero for
	// uninitialized accounts.
	Seqno(ctx context.Context, addr string) (uint32, error)

	// WalletAddress derives the V4R2 wallet address for a seed phrase.
	WalletAddress(seed []string) (string, error)

	// SendAll broadcasts a transfer carrying the wallet's entire remaining
	// balance (send mode 128) to dst. The sending wallet is left empty.
	SendAll(ctx context.Context, seed []string, dst string, body *cell.Cell) error

	// Send broadcasts a transfer of a fixed nanoton amount.
	Send(ctx context.Context, seed []string, dst string, amount int64, body *cell.Cell) error

	// RunGetInt executes a get-method on a contract and returns the first
	// stack entry as an integer.
	RunGetInt(ctx context.Context, addr, method string) (*big.Int, error)
}

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	// EmptyKeyMarker is stored in place of an encrypted seed for escrows
	// whose funds sit directly under master wallet custody.
	EmptyKeyMarker = "EMPTY"

	// DefaultConfirmPollInterval between seqno checks after a broadcast.
	DefaultConfirmPollInterval = 5 * time.Second

	// DefaultConfirmMaxAttempts bounds the confirmation polling loop.
	DefaultConfirmMaxAttempts = 20

	// rpcRetryAttempts and rpcRetryDelay govern rate-limit retries on
	// read calls against public endpoints.
	rpcRetryAttempts = 5
	rpcRetryDelay    = 2 * time.Second
)

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// OutcomeStatus reports how far a transfer got.
type OutcomeStatus string

const (
	// OutcomeConfirmed means the transfer was observed on-chain.
	OutcomeConfirmed OutcomeStatus = "confirmed"
	// OutcomePending means the transfer was broadcast but confirmation
	// polling ran out before the seqno advanced. The transfer may still
	// land; callers must not assume failure.
	OutcomePending OutcomeStatus = "pending"
)

// TransferOutcome describes a broadcast transfer.
type TransferOutcome struct {
	Status   OutcomeStatus
	From     string // Sending wallet address
	Attempts int    // Confirmation polls performed
}

// ParseAddress accepts either the user-friendly base64 form or the raw
// workchain:hex form.
func ParseAddress(addr string) (*address.Address, error) {
	if strings.Contains(addr, ":") {
		a, err := address.ParseRawAddr(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
		return a, nil
	}
	a, err := address.ParseAddr(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return a, nil
}

// Config for creating a new Client
type Config struct {
	EncryptionKey       string   // 64 hex chars (AES-256)
	MasterSeed          []string // 24-word master wallet mnemonic
	ConfirmPollInterval time.Duration
	ConfirmMaxAttempts  int
}

// Option configures the client
type Option func(*Client)

// WithChainAPI sets a custom chain client (useful for testing)
func WithChainAPI(chain ChainAPI) Option {
	return func(c *Client) {
		c.chain = chain
	}
}

// Client handles escrow wallet custody and TON transfers
type Client struct {
	chain        ChainAPI
	encKey       []byte
	masterSeed   []string
	pollInterval time.Duration
	maxAttempts  int

	// masterMu serializes transfers signed by the master wallet so
	// concurrent sends cannot race on its seqno.
	masterMu sync.Mutex
}

// New creates a new Client. A ChainAPI must be supplied via WithChainAPI
// or by Connect (see liteclient.go).
func New(cfg Config, opts ...Option) (*Client, error) {
	key, err := ParseKey(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if len(cfg.MasterSeed) != 24 {
		return nil, fmt.Errorf("%w: master seed must be 24 words, got %d", ErrKeyGeneration, len(cfg.MasterSeed))
	}

	c := &Client{
		encKey:       key,
		masterSeed:   cfg.MasterSeed,
		pollInterval: cfg.ConfirmPollInterval,
		maxAttempts:  cfg.ConfirmMaxAttempts,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultConfirmPollInterval
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultConfirmMaxAttempts
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.chain == nil {
		return nil, fmt.Errorf("%w: no chain client configured", ErrNetwork)
	}

	return c, nil
}

// GenerateEscrowWallet creates a fresh custodial escrow wallet and returns
// its address alongside the AES-encrypted seed phrase.
func (c *Client) GenerateEscrowWallet(ctx context.Context) (addr string, encryptedSeed string, err error) {
	seed := wallet.NewSeed()

	addr, err = c.chain.WalletAddress(seed)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	encryptedSeed, err = EncryptSeed(seed, c.encKey)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}

	return addr, encryptedSeed, nil
}

// MasterAddress returns the master wallet's address.
func (c *Client) MasterAddress() (string, error) {
	return c.chain.WalletAddress(c.masterSeed)
}

// Balance returns an address's balance in nanoton, retrying rate-limited reads.
func (c *Client) Balance(ctx context.Context, addr string) (int64, error) {
	if _, err := ParseAddress(addr); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}

	var balance int64
	err := retry.RPC(ctx, rpcRetryAttempts, rpcRetryDelay, func() error {
		b, err := c.chain.Balance(ctx, addr)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return balance, nil
}

// CheckPaymentReceived reports whether addr holds at least expected nanoton.
// It never returns an error: chain failures are logged and read as "not yet",
// so a poll endpoint can be hammered safely.
func (c *Client) CheckPaymentReceived(ctx context.Context, addr string, expected int64) bool {
	balance, err := c.Balance(ctx, addr)
	if err != nil {
		logging.L(ctx).Warn("payment check failed, treating as unpaid",
			"address", addr, "error", err)
		return false
	}
	return balance >= expected
}

// ReleaseFunds empties an escrow wallet to the beneficiary. encryptedSeed is
// the stored seed for the escrow wallet; an empty string or EmptyKeyMarker
// falls back to signing with the master wallet.
//
// On ErrReleaseTimeout the transfer was broadcast but not yet observed;
// the returned outcome is OutcomePending and the caller must re-check chain
// state before retrying.
func (c *Client) ReleaseFunds(ctx context.Context, encryptedSeed, to string) (*TransferOutcome, error) {
	return c.sweepWallet(ctx, "release", encryptedSeed, to)
}

// RefundFunds empties an escrow wallet back to the payer.
func (c *Client) RefundFunds(ctx context.Context, encryptedSeed, to string) (*TransferOutcome, error) {
	return c.sweepWallet(ctx, "refund", encryptedSeed, to)
}

func (c *Client) sweepWallet(ctx context.Context, op, encryptedSeed, to string) (*TransferOutcome, error) {
	if _, err := ParseAddress(to); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}

	seed, usingMaster, err := c.signerSeed(encryptedSeed)
	if err != nil {
		return nil, err
	}

	if usingMaster {
		c.masterMu.Lock()
		defer c.masterMu.Unlock()
	}

	from, err := c.chain.WalletAddress(seed)
	if err != nil {
		return nil, &TransferError{Op: op, Err: err}
	}

	balance, err := c.Balance(ctx, from)
	if err != nil {
		return nil, &TransferError{Op: op, From: from, Err: err}
	}
	if balance <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInsufficientFunds, from)
	}

	// Seqno is read after acquiring any master lock so concurrent master
	// sends observe each other's broadcasts.
	seqnoBefore, err := c.chain.Seqno(ctx, from)
	if err != nil {
		return nil, &TransferError{Op: op, From: from, Err: err}
	}

	if err := c.chain.SendAll(ctx, seed, to, nil); err != nil {
		return nil, &TransferError{Op: op, From: from, Err: err}
	}

	logging.L(ctx).Info("transfer broadcast",
		"op", op, "from", from, "to", to, "amount_nanoton", balance)

	return c.awaitSeqno(ctx, from, seqnoBefore)
}

// SendFromMaster broadcasts a fixed-amount transfer signed by the master
// wallet, serialized against other master sends, and waits for confirmation.
// Used by the shared escrow contract strategy for operation messages.
func (c *Client) SendFromMaster(ctx context.Context, to string, amount int64, body *cell.Cell) (*TransferOutcome, error) {
	if _, err := ParseAddress(to); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, to)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInsufficientFunds)
	}

	c.masterMu.Lock()
	defer c.masterMu.Unlock()

	from, err := c.chain.WalletAddress(c.masterSeed)
	if err != nil {
		return nil, &TransferError{Op: "master send", Err: err}
	}

	seqnoBefore, err := c.chain.Seqno(ctx, from)
	if err != nil {
		return nil, &TransferError{Op: "master send", From: from, Err: err}
	}

	if err := c.chain.Send(ctx, c.masterSeed, to, amount, body); err != nil {
		return nil, &TransferError{Op: "master send", From: from, Err: err}
	}

	return c.awaitSeqno(ctx, from, seqnoBefore)
}

// RunGetInt proxies contract get-method calls with rate-limit retries.
func (c *Client) RunGetInt(ctx context.Context, addr, method string) (*big.Int, error) {
	var result *big.Int
	err := retry.RPC(ctx, rpcRetryAttempts, rpcRetryDelay, func() error {
		v, err := c.chain.RunGetInt(ctx, addr, method)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return result, nil
}

// awaitSeqno polls until the wallet's seqno advances past before, confirming
// the broadcast was processed. Individual poll errors are tolerated.
func (c *Client) awaitSeqno(ctx context.Context, addr string, before uint32) (*TransferOutcome, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return &TransferOutcome{Status: OutcomePending, From: addr, Attempts: attempt - 1}, ctx.Err()
		case <-ticker.C:
		}

		seqno, err := c.chain.Seqno(ctx, addr)
		if err != nil {
			continue
		}
		if seqno > before {
			return &TransferOutcome{Status: OutcomeConfirmed, From: addr, Attempts: attempt}, nil
		}
	}

	return &TransferOutcome{Status: OutcomePending, From: addr, Attempts: c.maxAttempts},
		fmt.Errorf("%w: %s", ErrReleaseTimeout, addr)
}

// signerSeed resolves the seed phrase for an escrow transfer: the decrypted
// stored seed, or the master seed when the escrow predates per-deal wallets.
func (c *Client) signerSeed(encryptedSeed string) (seed []string, usingMaster bool, err error) {
	trimmed := strings.TrimSpace(encryptedSeed)
	if trimmed == "" || trimmed == EmptyKeyMarker {
		return c.masterSeed, true, nil
	}

	seed, err = DecryptSeed(trimmed, c.encKey)
	if err != nil {
		return nil, false, err
	}
	return seed, false, nil
}
