package transfer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Domain scopes every signature to one vault deployment. It is fixed at
// startup and never derived from caller input.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Transfer is the struct the vault contract verifies:
//
//	Transfer(address sender,address recipient,uint256 amount,uint256 nonce)
type Transfer struct {
	Sender    common.Address `json:"sender"`
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
	Nonce     *big.Int       `json:"nonce"`
}
