// Package authz issues the vault's second-factor transfer authorizations.
//
// The sender of every authorization is the address bound to the requesting
// identity in the directory; it is never taken from request text. The nonce
// is signed exactly as supplied: ordering and replay checks belong to the
// vault contract, which holds the only copy of nonce state.
package authz

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
	"github.com/0gfoundation/0g-vault-2fa/internal/transfer"
)

var (
	ErrUnregisteredIdentity = errors.New("identity has no registered address")
	ErrInvalidAddress       = identity.ErrInvalidAddress
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrStorageFailure       = identity.ErrStorageFailure
	// ErrSigningFailure means the key could not produce a signature.
	// The process cannot operate safely afterwards.
	ErrSigningFailure = errors.New("signing failure")
)

// Resolver looks up the address bound to an identity.
// *identity.Directory satisfies it.
type Resolver interface {
	Lookup(ctx context.Context, id identity.ID) (common.Address, error)
}

// Authorization is the artifact handed to the front-end: the plaintext
// message and the signature the vault verifies.
type Authorization struct {
	Message   transfer.Transfer
	Signature []byte
	Digest    [32]byte
}

// SignatureHex returns the 0x-prefixed signature.
func (a *Authorization) SignatureHex() string {
	return "0x" + hex.EncodeToString(a.Signature)
}

// MessageJSON renders the signed fields with amount and nonce as decimal strings.
func (a *Authorization) MessageJSON() string {
	raw, _ := json.Marshal(struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
		Nonce     string `json:"nonce"`
	}{
		Sender:    a.Message.Sender.Hex(),
		Recipient: a.Message.Recipient.Hex(),
		Amount:    a.Message.Amount.String(),
		Nonce:     a.Message.Nonce.String(),
	})
	return string(raw)
}

type Issuer struct {
	dir      Resolver
	privKey  *ecdsa.PrivateKey
	signer   common.Address
	domain   transfer.Domain
	decimals int32
	log      *zap.Logger
}

func NewIssuer(
	dir Resolver,
	privKey *ecdsa.PrivateKey,
	domain transfer.Domain,
	decimals int32,
	log *zap.Logger,
) (*Issuer, error) {
	if privKey == nil {
		return nil, fmt.Errorf("%w: no signing key", ErrSigningFailure)
	}
	if domain.ChainID == nil || domain.ChainID.Sign() <= 0 {
		return nil, errors.New("domain chain id must be positive")
	}
	if decimals < 0 || decimals > MaxDecimals {
		return nil, fmt.Errorf("asset decimals out of range: %d", decimals)
	}
	return &Issuer{
		dir:      dir,
		privKey:  privKey,
		signer:   crypto.PubkeyToAddress(privKey.PublicKey),
		domain:   domain,
		decimals: decimals,
		log:      log,
	}, nil
}

// SignerAddress is the account users authorize on-chain as their second factor.
func (i *Issuer) SignerAddress() common.Address { return i.signer }

// Domain returns the fixed signing domain.
func (i *Issuer) Domain() transfer.Domain { return i.domain }

// Decimals returns the asset scale used for amounts.
func (i *Issuer) Decimals() int32 { return i.decimals }

// Authorize builds and signs a Transfer from id's registered address.
// Inputs are checked in order (sender, recipient, amount, nonce) and the
// first failure is returned; nothing is signed unless all four are valid.
func (i *Issuer) Authorize(ctx context.Context, id identity.ID, recipientRaw, amountRaw, nonceRaw string) (*Authorization, error) {
	sender, err := i.dir.Lookup(ctx, id)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return nil, ErrUnregisteredIdentity
	case err != nil:
		return nil, err
	}

	recipient, err := identity.ParseAddress(recipientRaw)
	if err != nil {
		return nil, ErrInvalidAddress
	}
	amount, err := ParseAmount(amountRaw, i.decimals)
	if err != nil {
		return nil, err
	}
	nonce, err := ParseNonce(nonceRaw)
	if err != nil {
		return nil, err
	}

	msg := transfer.Transfer{
		Sender:    sender,
		Recipient: recipient,
		Amount:    amount,
		Nonce:     nonce,
	}
	digest, err := transfer.Hash(i.domain, &msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}
	sig, err := transfer.Sign(i.domain, &msg, i.privKey)
	if err != nil {
		i.log.Error("signing failed", zap.String("identity", string(id)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}

	i.log.Info("transfer authorized",
		zap.String("identity", string(id)),
		zap.String("sender", sender.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
		zap.String("nonce", nonce.String()),
	)
	return &Authorization{Message: msg, Signature: sig, Digest: digest}, nil
}
