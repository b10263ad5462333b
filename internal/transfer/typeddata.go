package transfer

import (
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// TypedData renders the transfer in the eth_signTypedData_v4 JSON shape, so
// wallets and front-ends can display or re-hash exactly what was signed.
func TypedData(d Domain, t *Transfer) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Transfer": {
				{Name: "sender", Type: "address"},
				{Name: "recipient", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
			},
		},
		PrimaryType: "Transfer",
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(d.ChainID),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"sender":    t.Sender.Hex(),
			"recipient": t.Recipient.Hex(),
			"amount":    t.Amount.String(),
			"nonce":     t.Nonce.String(),
		},
	}
}
