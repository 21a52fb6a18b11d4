package escrow

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/tonpost/tonpost/internal/ton"
)

const (
	testKeyHex   = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	contractAddr = "0:00000000000000000000000000000000000000000000000000000000000000cc"
	masterAddr   = "0:00000000000000000000000000000000000000000000000000000000000000aa"
	walletAddr   = "0:00000000000000000000000000000000000000000000000000000000000000bb"
)

// stubChain is a minimal in-memory ChainAPI for strategy tests.
type stubChain struct {
	mu       sync.Mutex
	balances map[string]int64
	seqnos   map[string]uint32
	getters  map[string]int64 // method -> value for the contract
	sent     []stubSend
}

type stubSend struct {
	to     string
	amount int64
	all    bool
	body   *cell.Cell
}

func newStubChain() *stubChain {
	return &stubChain{
		balances: map[string]int64{},
		seqnos:   map[string]uint32{},
		getters:  map[string]int64{},
	}
}

func (s *stubChain) Balance(_ context.Context, addr string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[addr], nil
}

func (s *stubChain) Seqno(_ context.Context, addr string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqnos[addr], nil
}

func (s *stubChain) WalletAddress(seed []string) (string, error) {
	return s.walletAddrLocked(seed)
}

func (s *stubChain) SendAll(_ context.Context, seed []string, dst string, body *cell.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, _ := s.walletAddrLocked(seed)
	s.sent = append(s.sent, stubSend{to: dst, amount: s.balances[from], all: true, body: body})
	s.balances[from] = 0
	s.seqnos[from]++
	return nil
}

func (s *stubChain) Send(_ context.Context, seed []string, dst string, amount int64, body *cell.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, _ := s.walletAddrLocked(seed)
	s.sent = append(s.sent, stubSend{to: dst, amount: amount, body: body})
	s.seqnos[from]++
	return nil
}

// Master seed maps to the master address, everything else to the escrow
// wallet address.
func (s *stubChain) walletAddrLocked(seed []string) (string, error) {
	if strings.Join(seed, " ") == strings.Join(masterSeed(), " ") {
		return masterAddr, nil
	}
	return walletAddr, nil
}

func (s *stubChain) RunGetInt(_ context.Context, addr, method string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return big.NewInt(s.getters[method]), nil
}

func masterSeed() []string {
	words := make([]string, 24)
	for i := range words {
		words[i] = "abandon"
	}
	words[23] = "art"
	return words
}

func newClient(t *testing.T, chain *stubChain) *ton.Client {
	t.Helper()
	c, err := ton.New(ton.Config{
		EncryptionKey:       testKeyHex,
		MasterSeed:          masterSeed(),
		ConfirmPollInterval: time.Millisecond,
		ConfirmMaxAttempts:  3,
	}, ton.WithChainAPI(chain))
	require.NoError(t, err)
	return c
}

func TestWalletStrategy_Lifecycle(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat := NewWalletStrategy(client)
	ctx := context.Background()

	esc, err := strat.Initiate(ctx, "deal_1", advertiserAddr, beneficiaryAddr, 3_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, walletAddr, esc.Address)
	assert.NotEmpty(t, esc.EncryptedSeed)
	assert.Contains(t, esc.DepositLink, "ton://transfer/"+walletAddr)
	assert.Contains(t, esc.DepositLink, "amount=3000000000")
	assert.Contains(t, esc.DepositLink, "text=deal_1")

	// Not funded yet.
	funded, err := strat.CheckFunded(ctx, esc)
	require.NoError(t, err)
	assert.False(t, funded)

	// Advertiser deposits.
	chain.mu.Lock()
	chain.balances[walletAddr] = 3_000_000_000
	chain.mu.Unlock()

	funded, err = strat.CheckFunded(ctx, esc)
	require.NoError(t, err)
	assert.True(t, funded)

	// Release empties the wallet to the beneficiary.
	outcome, err := strat.Release(ctx, esc, beneficiaryAddr)
	require.NoError(t, err)
	assert.Equal(t, ton.OutcomeConfirmed, outcome.Status)

	require.Len(t, chain.sent, 1)
	assert.True(t, chain.sent[0].all)
	assert.Equal(t, beneficiaryAddr, chain.sent[0].to)
	assert.EqualValues(t, 3_000_000_000, chain.sent[0].amount)
}

func TestWalletStrategy_Refund(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat := NewWalletStrategy(client)
	ctx := context.Background()

	esc, err := strat.Initiate(ctx, "deal_2", advertiserAddr, beneficiaryAddr, 1_000_000_000)
	require.NoError(t, err)

	chain.mu.Lock()
	chain.balances[walletAddr] = 1_000_000_000
	chain.mu.Unlock()

	_, err = strat.Refund(ctx, esc, advertiserAddr)
	require.NoError(t, err)
	require.Len(t, chain.sent, 1)
	assert.Equal(t, advertiserAddr, chain.sent[0].to)
}

func TestContractStrategy_Initiate(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat, err := NewContractStrategy(client, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	esc, err := strat.Initiate(ctx, "deal_3", advertiserAddr, beneficiaryAddr, 2_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, contractAddr, esc.Address)
	assert.Empty(t, esc.EncryptedSeed)

	// The init message went to the contract from the master wallet.
	require.Len(t, chain.sent, 1)
	assert.Equal(t, contractAddr, chain.sent[0].to)
	require.NotNil(t, chain.sent[0].body)

	s := chain.sent[0].body.BeginParse()
	assert.EqualValues(t, OpInitEscrow, s.MustLoadUInt(8))
	assert.Equal(t, DealKey("deal_3"), s.MustLoadUInt(64))

	// Deposit link carries the amount plus gas and a Deposit payload.
	assert.Contains(t, esc.DepositLink, "amount=2050000000")
	assert.Contains(t, esc.DepositLink, "bin=")
}

func TestContractStrategy_CheckFunded(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat, err := NewContractStrategy(client, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	esc := &Escrow{DealID: "deal_4", Address: contractAddr, Amount: 1}

	chain.getters["getStatus"] = ContractEmpty
	chain.getters["getDealId"] = int64(DealKey("deal_4"))
	funded, err := strat.CheckFunded(ctx, esc)
	require.NoError(t, err)
	assert.False(t, funded)

	chain.getters["getStatus"] = ContractFunded
	funded, err = strat.CheckFunded(ctx, esc)
	require.NoError(t, err)
	assert.True(t, funded)
}

// The contract is shared: FUNDED state left by another deal must not
// confirm this one.
func TestContractStrategy_CheckFunded_OtherDealsState(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat, err := NewContractStrategy(client, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	chain.getters["getStatus"] = ContractFunded
	chain.getters["getDealId"] = int64(DealKey("deal_other"))

	funded, err := strat.CheckFunded(ctx, &Escrow{DealID: "deal_4", Address: contractAddr, Amount: 1})
	require.NoError(t, err)
	assert.False(t, funded)
}

func TestContractStrategy_Getters(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat, err := NewContractStrategy(client, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	chain.getters["getStatus"] = ContractReleased
	chain.getters["getDealId"] = int64(DealKey("deal_6"))
	chain.getters["getAmount"] = 2_000_000_000

	status, err := strat.ContractStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, ContractReleased, status)

	dealKey, err := strat.ContractDealID(ctx)
	require.NoError(t, err)
	assert.Equal(t, DealKey("deal_6"), dealKey)

	amount, err := strat.ContractAmount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2_000_000_000, amount)
}

func TestContractStrategy_ReleaseAndRefundOpcodes(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)
	strat, err := NewContractStrategy(client, contractAddr)
	require.NoError(t, err)
	ctx := context.Background()

	esc := &Escrow{DealID: "deal_5", Address: contractAddr, Amount: 1}

	_, err = strat.Release(ctx, esc, beneficiaryAddr)
	require.NoError(t, err)
	_, err = strat.Refund(ctx, esc, advertiserAddr)
	require.NoError(t, err)

	require.Len(t, chain.sent, 2)
	for i, wantOp := range []uint64{OpRelease, OpRefund} {
		s := chain.sent[i].body.BeginParse()
		assert.EqualValues(t, wantOp, s.MustLoadUInt(8))
		assert.Zero(t, s.BitsLeft(), "operation body must be opcode-only")
	}
}

func TestContractStrategy_RejectsBadContractAddress(t *testing.T) {
	chain := newStubChain()
	client := newClient(t, chain)

	_, err := NewContractStrategy(client, "nonsense")
	assert.ErrorIs(t, err, ton.ErrInvalidAddress)
}
