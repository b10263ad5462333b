// Package transfer encodes and signs vault transfer authorizations as
// EIP-712 typed data.
package transfer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	domainType   = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
	transferType = "Transfer(address sender,address recipient,uint256 amount,uint256 nonce)"
)

var (
	domainTypeHash   = crypto.Keccak256Hash([]byte(domainType))
	transferTypeHash = crypto.Keccak256Hash([]byte(transferType))
)

var (
	ErrIncomplete   = errors.New("transfer message is incomplete")
	ErrOutOfRange   = errors.New("value does not fit in uint256")
	ErrSignatureLen = errors.New("invalid signature length")
)

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() [32]byte {
	nameHash := crypto.Keccak256Hash([]byte(d.Name))
	versionHash := crypto.Keccak256Hash([]byte(d.Version))

	// ABI-encode: (bytes32, bytes32, bytes32, uint256, address)
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	d.ChainID.FillBytes(encoded[96:128])
	copy(encoded[140:160], d.VerifyingContract.Bytes()) // addr is right-aligned in 32-byte slot

	return crypto.Keccak256Hash(encoded)
}

// Validate reports whether every field is present and fits its ABI type.
func (t *Transfer) Validate() error {
	if t == nil || t.Amount == nil || t.Nonce == nil {
		return ErrIncomplete
	}
	if t.Amount.Sign() < 0 || t.Amount.BitLen() > 256 {
		return fmt.Errorf("amount: %w", ErrOutOfRange)
	}
	if t.Nonce.Sign() < 0 || t.Nonce.BitLen() > 256 {
		return fmt.Errorf("nonce: %w", ErrOutOfRange)
	}
	return nil
}

// structHash = keccak256(typeHash || abi.encode(sender, recipient, amount, nonce))
func (t *Transfer) structHash() [32]byte {
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], transferTypeHash[:])
	copy(encoded[44:64], t.Sender.Bytes())
	copy(encoded[76:96], t.Recipient.Bytes())
	t.Amount.FillBytes(encoded[96:128])
	t.Nonce.FillBytes(encoded[128:160])
	return crypto.Keccak256Hash(encoded)
}

// Hash returns the EIP-712 digest keccak256(0x1901 || domainSeparator || structHash).
func Hash(d Domain, t *Transfer) ([32]byte, error) {
	if err := t.Validate(); err != nil {
		return [32]byte{}, err
	}
	if d.ChainID == nil || d.ChainID.Sign() < 0 || d.ChainID.BitLen() > 256 {
		return [32]byte{}, fmt.Errorf("chain id: %w", ErrOutOfRange)
	}
	sep := d.Separator()
	sh := t.structHash()

	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], sh[:])
	return crypto.Keccak256Hash(msg), nil
}

// Sign returns the 65-byte signature (R || S || V) over the transfer digest.
// V is 27 or 28 for Solidity ecrecover. secp256k1 signing here is
// deterministic (RFC 6979), so equal inputs give equal signatures.
func Sign(d Domain, t *Transfer, privKey *ecdsa.PrivateKey) ([]byte, error) {
	if privKey == nil {
		return nil, errors.New("nil signing key")
	}
	digest, err := Hash(d, t)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced sig over the transfer digest.
func Recover(d Domain, t *Transfer, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, ErrSignatureLen
	}
	digest, err := Hash(d, t)
	if err != nil {
		return common.Address{}, err
	}
	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
