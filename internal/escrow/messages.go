package escrow

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"net/url"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Escrow contract operation codes. InitEscrow carries the deal key, both
// parties and the amount; Deposit, Release and Refund are opcode-only
// bodies. The contract's receivers reject anything else.
const (
	OpInitEscrow = 0x01
	OpDeposit    = 0x02
	OpRelease    = 0x03
	OpRefund     = 0x04
)

// Contract status values returned by the getStatus getter.
const (
	ContractEmpty    = 0
	ContractFunded   = 1
	ContractReleased = 2
	ContractRefunded = 3
)

// DealKey derives the 64-bit deal identifier the contract stores from an
// opaque API deal ID (FNV-1a, stable across restarts).
func DealKey(dealID string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(dealID))
	return h.Sum64()
}

// InitEscrowMessage builds the body that registers a deal with the contract:
// opcode, deal key, both parties, and the expected amount.
func InitEscrowMessage(dealKey uint64, advertiser, beneficiary *address.Address, amount int64) *cell.Cell {
	return cell.BeginCell().
		MustStoreUInt(OpInitEscrow, 8).
		MustStoreUInt(dealKey, 64).
		MustStoreAddr(advertiser).
		MustStoreAddr(beneficiary).
		MustStoreCoins(uint64(amount)).
		EndCell()
}

// DepositMessage builds the body the advertiser's wallet attaches to the
// funding transfer. The contract identifies the deal by its own state, so
// the body is just the opcode.
func DepositMessage() *cell.Cell {
	return opMessage(OpDeposit)
}

// ReleaseMessage builds the body instructing the contract to pay out.
func ReleaseMessage() *cell.Cell {
	return opMessage(OpRelease)
}

// RefundMessage builds the body instructing the contract to refund.
func RefundMessage() *cell.Cell {
	return opMessage(OpRefund)
}

func opMessage(op uint64) *cell.Cell {
	return cell.BeginCell().
		MustStoreUInt(op, 8).
		EndCell()
}

// DepositLink builds a ton://transfer deeplink. memo becomes the transfer
// comment; body (if non-nil) is attached as a standard-base64 BOC payload
// for contract deposits, query-escaped for the URL.
func DepositLink(addr string, amount int64, memo string, body *cell.Cell) string {
	link := fmt.Sprintf("ton://transfer/%s?amount=%d", addr, amount)
	if memo != "" {
		link += "&text=" + url.QueryEscape(memo)
	}
	if body != nil {
		boc := base64.StdEncoding.EncodeToString(body.ToBOC())
		link += "&bin=" + url.QueryEscape(boc)
	}
	return link
}
