// Package bot routes text commands from a chat transport to the identity
// directory and the authorization issuer, and renders the replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/0gfoundation/0g-vault-2fa/internal/authz"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
)

// Registrar binds identities to addresses. *identity.Directory satisfies it.
type Registrar interface {
	Upsert(ctx context.Context, id identity.ID, rawAddr string) (common.Address, error)
	Lookup(ctx context.Context, id identity.ID) (common.Address, error)
}

// Authorizer issues signed transfers. *authz.Issuer satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, id identity.ID, recipientRaw, amountRaw, nonceRaw string) (*authz.Authorization, error)
}

const (
	msgHelp = "Commands:\n" +
		"/register <address> [signature] - bind your Ethereum address\n" +
		"/showaddress - show your registered address\n" +
		"/authorize <recipient> <amount> <nonce> - sign a vault transfer\n\n" +
		"Fetch the nonce from the vault contract right before authorizing."
	msgUnknown       = "Unknown command. Send /help for the list of commands."
	msgRateLimited   = "Too many requests. Please wait a moment and try again."
	msgUnavailable   = "The service is unavailable. Please try again later."
	msgTransient     = "The service could not complete your request right now. Nothing was changed; please try again later."
	msgNotRegistered = "You do not have a registered Ethereum address. Use /register <your_address> to register."

	usageRegister  = "Usage: /register <address> [signature]"
	usageAuthorize = "Usage: /authorize <recipient> <amount> <nonce>"
)

type Options struct {
	// BotUsername and Vault build the ownership-proof message.
	BotUsername  string
	Vault        common.Address
	RequireProof bool
	// Limiter is optional; nil disables rate limiting.
	Limiter *Limiter
	// OnHalt runs once, the first time signing fails.
	OnHalt func(error)
}

type Dispatcher struct {
	dir    Registrar
	issuer Authorizer
	opts   Options
	log    *zap.Logger

	halted   atomic.Bool
	haltOnce sync.Once
}

func NewDispatcher(dir Registrar, issuer Authorizer, opts Options, log *zap.Logger) *Dispatcher {
	return &Dispatcher{dir: dir, issuer: issuer, opts: opts, log: log}
}

// Halted reports whether a signing failure has stopped request processing.
func (d *Dispatcher) Halted() bool { return d.halted.Load() }

// Handle runs one command for id and returns the reply text.
// id is supplied by the transport and is never read from text.
func (d *Dispatcher) Handle(ctx context.Context, id identity.ID, text string) string {
	if d.halted.Load() {
		return msgUnavailable
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return msgUnknown
	}
	cmd, args := normalize(fields[0]), fields[1:]

	log := d.log.With(
		zap.String("request_id", uuid.NewString()),
		zap.String("identity", string(id)),
		zap.String("command", cmd),
	)

	if !d.opts.Limiter.Allow(id) {
		log.Warn("rate limited")
		return msgRateLimited
	}

	switch cmd {
	case "register":
		return d.register(ctx, log, id, args)
	case "showaddress", "show-address":
		return d.showAddress(ctx, log, id)
	case "authorize", "approve":
		return d.authorize(ctx, log, id, args)
	case "start", "help":
		return msgHelp
	default:
		return msgUnknown
	}
}

// normalize lowercases a command word and strips the leading slash and
// any @botname suffix ("/Register@VaultBot" -> "register").
func normalize(word string) string {
	word = strings.ToLower(strings.TrimPrefix(word, "/"))
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return word
}

func (d *Dispatcher) register(ctx context.Context, log *zap.Logger, id identity.ID, args []string) string {
	if len(args) < 1 || len(args) > 2 {
		return usageRegister
	}
	addr, err := identity.ParseAddress(args[0])
	if err != nil {
		return "Could not register address: that is not a valid Ethereum address."
	}

	challenge := identity.ConnectMessage(d.opts.BotUsername, d.opts.Vault)
	switch {
	case len(args) == 2:
		if err := identity.VerifyOwnership(challenge, args[1], addr); err != nil {
			log.Info("ownership proof rejected", zap.String("address", addr.Hex()))
			return "Could not register address: the signature does not prove ownership of that address."
		}
	case d.opts.RequireProof:
		return fmt.Sprintf("To register, sign this exact message with %s and send /register <address> <signature>:\n\n%s",
			addr.Hex(), challenge)
	}

	stored, err := d.dir.Upsert(ctx, id, addr.Hex())
	switch {
	case err == nil:
		return fmt.Sprintf("Your Ethereum address has been registered: %s", stored.Hex())
	case errors.Is(err, identity.ErrInvalidAddress):
		return "Could not register address: that is not a valid Ethereum address."
	case errors.Is(err, identity.ErrStorageFailure):
		return msgTransient
	default:
		log.Error("register failed", zap.Error(err))
		return "Could not register address."
	}
}

func (d *Dispatcher) showAddress(ctx context.Context, log *zap.Logger, id identity.ID) string {
	addr, err := d.dir.Lookup(ctx, id)
	switch {
	case err == nil:
		return fmt.Sprintf("Your registered Ethereum address is: %s", addr.Hex())
	case errors.Is(err, identity.ErrNotFound):
		return msgNotRegistered
	case errors.Is(err, identity.ErrStorageFailure):
		return msgTransient
	default:
		log.Error("lookup failed", zap.Error(err))
		return "Could not fetch your address."
	}
}

func (d *Dispatcher) authorize(ctx context.Context, log *zap.Logger, id identity.ID, args []string) string {
	if len(args) != 3 {
		return usageAuthorize
	}
	auth, err := d.issuer.Authorize(ctx, id, args[0], args[1], args[2])
	switch {
	case err == nil:
		return fmt.Sprintf("Message: %s\nSignature: %s", auth.MessageJSON(), auth.SignatureHex())
	case errors.Is(err, authz.ErrUnregisteredIdentity):
		return msgNotRegistered
	case errors.Is(err, authz.ErrInvalidAddress):
		return "Could not authorize: the recipient is not a valid Ethereum address."
	case errors.Is(err, authz.ErrInvalidAmount):
		return "Could not authorize: the amount must be a non-negative decimal number such as 1.5."
	case errors.Is(err, authz.ErrInvalidNonce):
		return "Could not authorize: the nonce must be a non-negative whole number. Read it from the vault contract."
	case errors.Is(err, authz.ErrStorageFailure):
		return msgTransient
	case errors.Is(err, authz.ErrSigningFailure):
		d.halt(log, err)
		return msgUnavailable
	default:
		log.Error("authorize failed", zap.Error(err))
		return "Could not authorize the transfer."
	}
}

func (d *Dispatcher) halt(log *zap.Logger, err error) {
	d.halted.Store(true)
	d.haltOnce.Do(func() {
		log.Error("signing failed; halting request processing", zap.Error(err))
		if d.opts.OnHalt != nil {
			d.opts.OnHalt(err)
		}
	})
}
