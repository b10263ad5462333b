package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidProof = errors.New("ownership proof does not match address")

// ConnectMessage is the text a wallet owner signs (personal_sign) in the web
// front-end to prove they control the address they register with the bot.
func ConnectMessage(botUsername string, contract common.Address) string {
	return fmt.Sprintf("Connect Telegram @%s to your account for contract %s", botUsername, contract.Hex())
}

// HashMessage constructs the EIP-191 prefixed hash:
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashMessage(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return crypto.Keccak256([]byte(prefix), msg)
}

// RecoverPersonal extracts the signer address from an EIP-191 signature.
// sig must be 65 bytes (R || S || V), with V in {0,1} or {27,28}.
func RecoverPersonal(msg []byte, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, errors.New("invalid signature length")
	}
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}
	pub, err := crypto.SigToPub(HashMessage(msg), sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyOwnership checks that sigHex is addr's personal signature over msg.
func VerifyOwnership(msg string, sigHex string, addr common.Address) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		return ErrInvalidProof
	}
	recovered, err := RecoverPersonal([]byte(msg), sig)
	if err != nil {
		return ErrInvalidProof
	}
	if recovered != addr {
		return ErrInvalidProof
	}
	return nil
}
