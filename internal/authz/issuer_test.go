package authz

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
	"github.com/0gfoundation/0g-vault-2fa/internal/transfer"
)

// ── helpers ───────────────────────────────────────────────────────────────────

var (
	// Fixed deterministic test key (not used anywhere outside tests)
	testPrivKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	testDomain = transfer.Domain{
		Name:              "TelegramBotVault",
		Version:           "1",
		ChainID:           big.NewInt(1001),
		VerifyingContract: common.HexToAddress("0xc4eD1724823147f891c8B981F5983Ce5fbA791ae"),
	}

	senderHex    = "0xabc1230000000000000000000000000000000000"
	recipientHex = "0xdef4560000000000000000000000000000000000"
)

func newTestIssuer(t *testing.T) (*Issuer, *identity.Directory, common.Address) {
	t.Helper()
	privKey, err := crypto.HexToECDSA(testPrivKeyHex)
	if err != nil {
		t.Fatalf("load test private key: %v", err)
	}
	dir := identity.NewDirectory(identity.NewMemoryStore(), zap.NewNop())
	iss, err := NewIssuer(dir, privKey, testDomain, 18, zap.NewNop())
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return iss, dir, crypto.PubkeyToAddress(privKey.PublicKey)
}

type brokenResolver struct{ err error }

func (r brokenResolver) Lookup(context.Context, identity.ID) (common.Address, error) {
	return common.Address{}, r.err
}

// ── Scenario ──────────────────────────────────────────────────────────────────

// register 42 → authorize 1.5 to recipient at nonce 3 → signature verifies
// against the service address for the expected message.
func TestAuthorize_EndToEnd(t *testing.T) {
	iss, dir, signer := newTestIssuer(t)
	ctx := context.Background()

	if _, err := dir.Upsert(ctx, "42", senderHex); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	auth, err := iss.Authorize(ctx, "42", recipientHex, "1.5", "3")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	wantAmount, _ := new(big.Int).SetString("1500000000000000000", 10)
	if auth.Message.Sender != common.HexToAddress(senderHex) {
		t.Errorf("sender: got %s", auth.Message.Sender.Hex())
	}
	if auth.Message.Recipient != common.HexToAddress(recipientHex) {
		t.Errorf("recipient: got %s", auth.Message.Recipient.Hex())
	}
	if auth.Message.Amount.Cmp(wantAmount) != 0 {
		t.Errorf("amount: got %s want %s", auth.Message.Amount, wantAmount)
	}
	if auth.Message.Nonce.Int64() != 3 {
		t.Errorf("nonce: got %s want 3", auth.Message.Nonce)
	}

	recovered, err := transfer.Recover(testDomain, &auth.Message, auth.Signature)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if recovered != signer {
		t.Errorf("recovered %s, want service signer %s", recovered.Hex(), signer.Hex())
	}
	if iss.SignerAddress() != signer {
		t.Errorf("SignerAddress: got %s", iss.SignerAddress().Hex())
	}

	digest, _ := transfer.Hash(testDomain, &auth.Message)
	if digest != auth.Digest {
		t.Error("returned digest does not match recomputed digest")
	}
}

func TestAuthorize_Deterministic(t *testing.T) {
	iss, dir, _ := newTestIssuer(t)
	ctx := context.Background()
	_, _ = dir.Upsert(ctx, "42", senderHex)

	a1, err := iss.Authorize(ctx, "42", recipientHex, "1.5", "3")
	if err != nil {
		t.Fatal(err)
	}
	a2, err := iss.Authorize(ctx, "42", recipientHex, "1.5", "3")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a1.Signature, a2.Signature) {
		t.Error("same inputs should yield byte-identical signatures")
	}
}

func TestAuthorize_ZeroAmountAccepted(t *testing.T) {
	iss, dir, _ := newTestIssuer(t)
	ctx := context.Background()
	_, _ = dir.Upsert(ctx, "42", senderHex)

	auth, err := iss.Authorize(ctx, "42", recipientHex, "0", "0")
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if auth.Message.Amount.Sign() != 0 {
		t.Errorf("amount: got %s want 0", auth.Message.Amount)
	}
}

func TestAuthorize_SenderFollowsReRegistration(t *testing.T) {
	iss, dir, _ := newTestIssuer(t)
	ctx := context.Background()
	_, _ = dir.Upsert(ctx, "42", senderHex)
	_, _ = dir.Upsert(ctx, "42", "0x9999999999999999999999999999999999999999")

	auth, err := iss.Authorize(ctx, "42", recipientHex, "1", "0")
	if err != nil {
		t.Fatal(err)
	}
	if auth.Message.Sender != common.HexToAddress("0x9999999999999999999999999999999999999999") {
		t.Errorf("sender should be the latest binding, got %s", auth.Message.Sender.Hex())
	}
}

// ── Errors ────────────────────────────────────────────────────────────────────

func TestAuthorize_Unregistered(t *testing.T) {
	iss, _, _ := newTestIssuer(t)

	auth, err := iss.Authorize(context.Background(), "stranger", recipientHex, "1", "0")
	if !errors.Is(err, ErrUnregisteredIdentity) {
		t.Fatalf("expected ErrUnregisteredIdentity, got %v", err)
	}
	if auth != nil {
		t.Error("no authorization may be returned for an unregistered identity")
	}
}

// An unregistered identity fails first even if every other input is bad.
func TestAuthorize_UnregisteredCheckedFirst(t *testing.T) {
	iss, _, _ := newTestIssuer(t)
	_, err := iss.Authorize(context.Background(), "stranger", "bad", "bad", "bad")
	if !errors.Is(err, ErrUnregisteredIdentity) {
		t.Fatalf("expected ErrUnregisteredIdentity, got %v", err)
	}
}

func TestAuthorize_InvalidInputs(t *testing.T) {
	iss, dir, _ := newTestIssuer(t)
	ctx := context.Background()
	_, _ = dir.Upsert(ctx, "42", senderHex)

	cases := []struct {
		name                     string
		recipient, amount, nonce string
		want                     error
	}{
		{"bad recipient", "0x123", "1", "0", ErrInvalidAddress},
		{"bad checksum", "0xC4eD1724823147f891c8B981F5983Ce5fbA791ae", "1", "0", ErrInvalidAddress},
		{"abc amount", recipientHex, "abc", "0", ErrInvalidAmount},
		{"negative amount", recipientHex, "-1", "0", ErrInvalidAmount},
		{"double dot amount", recipientHex, "1.2.3", "0", ErrInvalidAmount},
		{"negative nonce", recipientHex, "1", "-1", ErrInvalidNonce},
		{"text nonce", recipientHex, "1", "three", ErrInvalidNonce},
	}
	for _, tc := range cases {
		auth, err := iss.Authorize(ctx, "42", tc.recipient, tc.amount, tc.nonce)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if auth != nil {
			t.Errorf("%s: authorization returned on error", tc.name)
		}
	}
}

func TestAuthorize_StorageFailure(t *testing.T) {
	privKey, _ := crypto.HexToECDSA(testPrivKeyHex)
	wrapped := errors.Join(identity.ErrStorageFailure, errors.New("dial tcp: refused"))
	iss, err := NewIssuer(brokenResolver{err: wrapped}, privKey, testDomain, 18, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	_, err = iss.Authorize(context.Background(), "42", recipientHex, "1", "0")
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected ErrStorageFailure, got %v", err)
	}
}

func TestNewIssuer_Validation(t *testing.T) {
	privKey, _ := crypto.HexToECDSA(testPrivKeyHex)
	dir := identity.NewDirectory(identity.NewMemoryStore(), zap.NewNop())

	if _, err := NewIssuer(dir, nil, testDomain, 18, zap.NewNop()); !errors.Is(err, ErrSigningFailure) {
		t.Errorf("nil key: expected ErrSigningFailure, got %v", err)
	}
	noChain := testDomain
	noChain.ChainID = nil
	if _, err := NewIssuer(dir, privKey, noChain, 18, zap.NewNop()); err == nil {
		t.Error("nil chain id should be rejected")
	}
	if _, err := NewIssuer(dir, privKey, testDomain, 78, zap.NewNop()); err == nil {
		t.Error("decimals above 77 should be rejected")
	}
}

// ── Concurrency ───────────────────────────────────────────────────────────────

func TestAuthorize_ConcurrentRequests(t *testing.T) {
	iss, dir, signer := newTestIssuer(t)
	ctx := context.Background()
	_, _ = dir.Upsert(ctx, "42", senderHex)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			auth, err := iss.Authorize(ctx, "42", recipientHex, "0.1", big.NewInt(n).String())
			if err != nil {
				t.Errorf("Authorize: %v", err)
				return
			}
			got, err := transfer.Recover(testDomain, &auth.Message, auth.Signature)
			if err != nil || got != signer {
				t.Errorf("nonce %d: bad signature (err=%v)", n, err)
			}
		}(int64(i))
	}
	wg.Wait()
}

// ── Rendering ─────────────────────────────────────────────────────────────────

func TestAuthorization_Rendering(t *testing.T) {
	iss, dir, _ := newTestIssuer(t)
	ctx := context.Background()
	_, _ = dir.Upsert(ctx, "42", senderHex)

	auth, err := iss.Authorize(ctx, "42", recipientHex, "1.5", "3")
	if err != nil {
		t.Fatal(err)
	}
	want := `{"sender":"` + common.HexToAddress(senderHex).Hex() +
		`","recipient":"` + common.HexToAddress(recipientHex).Hex() +
		`","amount":"1500000000000000000","nonce":"3"}`
	if got := auth.MessageJSON(); got != want {
		t.Errorf("MessageJSON:\n got %s\nwant %s", got, want)
	}
	if sig := auth.SignatureHex(); len(sig) != 2+130 || sig[:2] != "0x" {
		t.Errorf("SignatureHex: unexpected %q", sig)
	}
}
