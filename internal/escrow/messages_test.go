package escrow

import (
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

const (
	advertiserAddr  = "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N"
	beneficiaryAddr = "0:0000000000000000000000000000000000000000000000000000000000000001"
)

func TestDealKey_Deterministic(t *testing.T) {
	k1 := DealKey("deal_abc123")
	k2 := DealKey("deal_abc123")
	k3 := DealKey("deal_abc124")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotZero(t, k1)
}

func TestInitEscrowMessage_RoundTrip(t *testing.T) {
	adv := address.MustParseAddr(advertiserAddr)
	ben := address.MustParseRawAddr(beneficiaryAddr)
	key := DealKey("deal_x")

	c := InitEscrowMessage(key, adv, ben, 1_500_000_000)

	s := c.BeginParse()
	assert.EqualValues(t, OpInitEscrow, s.MustLoadUInt(8))
	assert.Equal(t, key, s.MustLoadUInt(64))
	assert.Equal(t, adv.String(), s.MustLoadAddr().String())
	assert.Equal(t, ben.String(), s.MustLoadAddr().String())
	assert.EqualValues(t, 1_500_000_000, s.MustLoadCoins())
}

// Deposit, Release and Refund bodies are the 8-bit opcode and nothing
// else; the contract's receivers bounce anything longer.
func TestOpMessages_OpcodeOnly(t *testing.T) {
	for _, tc := range []struct {
		name string
		body *cell.Cell
		op   uint64
	}{
		{"deposit", DepositMessage(), OpDeposit},
		{"release", ReleaseMessage(), OpRelease},
		{"refund", RefundMessage(), OpRefund},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.body.BeginParse()
			assert.Equal(t, tc.op, s.MustLoadUInt(8))
			assert.Zero(t, s.BitsLeft(), "body must carry no fields after the opcode")
			assert.Zero(t, s.RefsNum())
		})
	}
}

func TestDepositLink(t *testing.T) {
	link := DepositLink(advertiserAddr, 2_000_000_000, "deal_z", nil)
	assert.Equal(t, "ton://transfer/"+advertiserAddr+"?amount=2000000000&text=deal_z", link)
}

func TestDepositLink_WithPayload(t *testing.T) {
	link := DepositLink(advertiserAddr, 2_050_000_000, "", DepositMessage())

	prefix := "ton://transfer/" + advertiserAddr + "?amount=2050000000&bin="
	require.True(t, strings.HasPrefix(link, prefix))

	// The bin parameter must unescape to a standard-base64 BOC that parses
	// back to the Deposit body.
	raw, err := url.QueryUnescape(link[len(prefix):])
	require.NoError(t, err)
	boc, err := base64.StdEncoding.DecodeString(raw)
	require.NoError(t, err)
	body, err := cell.FromBOC(boc)
	require.NoError(t, err)
	assert.EqualValues(t, OpDeposit, body.BeginParse().MustLoadUInt(8))
}
