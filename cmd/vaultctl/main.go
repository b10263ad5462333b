package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/0gfoundation/0g-vault-2fa/internal/authz"
	"github.com/0gfoundation/0g-vault-2fa/internal/config"
	"github.com/0gfoundation/0g-vault-2fa/internal/identity"
	"github.com/0gfoundation/0g-vault-2fa/internal/signer"
	"github.com/0gfoundation/0g-vault-2fa/internal/transfer"
	"github.com/0gfoundation/0g-vault-2fa/internal/vault"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	domainFlags := []cli.Flag{
		&cli.StringFlag{Name: "contract", Usage: "vault (verifying contract) address", EnvVars: []string{"VAULT_CONTRACT"}, Required: true},
		&cli.Int64Flag{Name: "chain-id", Usage: "EIP-712 domain chain id", EnvVars: []string{"CHAIN_ID"}, Value: 1001},
		&cli.StringFlag{Name: "name", Usage: "EIP-712 domain name", EnvVars: []string{"DOMAIN_NAME"}, Value: "TelegramBotVault"},
		&cli.StringFlag{Name: "domain-version", Usage: "EIP-712 domain version", EnvVars: []string{"DOMAIN_VERSION"}, Value: "1"},
	}

	return &cli.App{
		Name:  "vaultctl",
		Usage: "Operator tooling for the vault second-factor signer",
		Description: `Helpers around the vault's second-factor signing service.

- keygen / address manage the service signing key
- verify recomputes an authorization digest and recovers its signer
- nonce reads the current nonce and balance from the vault contract`,
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Create a signing key file (kept if it already exists)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "key file path", EnvVars: []string{"SIGNING_KEY_FILE"}, Value: "./secret"},
				},
				Action: keygenCommand,
			},
			{
				Name:  "address",
				Usage: "Print the signer address users must authorize on-chain",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key-file", Usage: "key file path", EnvVars: []string{"SIGNING_KEY_FILE"}, Value: "./secret"},
				},
				Action: addressCommand,
			},
			{
				Name:  "verify",
				Usage: "Recompute a transfer digest and recover the signer",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "sender", Required: true},
					&cli.StringFlag{Name: "recipient", Required: true},
					&cli.StringFlag{Name: "amount", Usage: "amount in the asset's smallest unit", Required: true},
					&cli.StringFlag{Name: "nonce", Required: true},
					&cli.StringFlag{Name: "signature", Usage: "0x-prefixed 65-byte signature", Required: true},
					&cli.StringFlag{Name: "expect", Usage: "fail unless the recovered signer equals this address"},
					&cli.BoolFlag{Name: "typed-data", Usage: "also print the eth_signTypedData_v4 payload"},
				}, domainFlags...),
				Action: verifyCommand,
			},
			{
				Name:  "nonce",
				Usage: "Read an owner's nonce and balance from the vault",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "rpc-url", EnvVars: []string{"RPC_URL"}, Required: true},
					&cli.StringFlag{Name: "owner", Required: true},
					&cli.IntFlag{Name: "decimals", EnvVars: []string{"ASSET_DECIMALS"}, Value: 18},
				}, domainFlags...),
				Action: nonceCommand,
			},
		},
	}
}

func keygenCommand(c *cli.Context) error {
	path := c.String("out")
	addr, created, err := signer.Generate(path)
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintf(c.App.Writer, "created %s\n", path)
	} else {
		fmt.Fprintf(c.App.Writer, "kept existing %s\n", path)
	}
	fmt.Fprintln(c.App.Writer, addr.Hex())
	return nil
}

func addressCommand(c *cli.Context) error {
	key, err := signer.Load(config.SignerConfig{
		PrivateKey: os.Getenv("SIGNING_KEY"),
		KeyFile:    c.String("key-file"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, key.Address.Hex())
	return nil
}

func domainFromFlags(c *cli.Context) (transfer.Domain, error) {
	contract, err := identity.ParseAddress(c.String("contract"))
	if err != nil {
		return transfer.Domain{}, fmt.Errorf("--contract: %w", err)
	}
	if c.Int64("chain-id") <= 0 {
		return transfer.Domain{}, fmt.Errorf("--chain-id must be positive")
	}
	return transfer.Domain{
		Name:              c.String("name"),
		Version:           c.String("domain-version"),
		ChainID:           big.NewInt(c.Int64("chain-id")),
		VerifyingContract: contract,
	}, nil
}

func verifyCommand(c *cli.Context) error {
	d, err := domainFromFlags(c)
	if err != nil {
		return err
	}
	sender, err := identity.ParseAddress(c.String("sender"))
	if err != nil {
		return fmt.Errorf("--sender: %w", err)
	}
	recipient, err := identity.ParseAddress(c.String("recipient"))
	if err != nil {
		return fmt.Errorf("--recipient: %w", err)
	}
	// Amount is already in base units here, so parse it like a nonce.
	amount, err := authz.ParseNonce(c.String("amount"))
	if err != nil {
		return fmt.Errorf("--amount: must be a base-unit integer")
	}
	nonce, err := authz.ParseNonce(c.String("nonce"))
	if err != nil {
		return fmt.Errorf("--nonce: %w", err)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(c.String("signature"), "0x"))
	if err != nil {
		return fmt.Errorf("--signature: %w", err)
	}

	msg := transfer.Transfer{Sender: sender, Recipient: recipient, Amount: amount, Nonce: nonce}
	digest, err := transfer.Hash(d, &msg)
	if err != nil {
		return err
	}
	recovered, err := transfer.Recover(d, &msg, sig)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "digest: 0x%x\nsigner: %s\n", digest, recovered.Hex())
	if c.Bool("typed-data") {
		td, err := json.MarshalIndent(transfer.TypedData(d, &msg), "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, string(td))
	}

	if want := c.String("expect"); want != "" {
		if !common.IsHexAddress(want) || common.HexToAddress(want) != recovered {
			return cli.Exit(fmt.Sprintf("signer mismatch: recovered %s, expected %s", recovered.Hex(), want), 1)
		}
	}
	return nil
}

func nonceCommand(c *cli.Context) error {
	contract, err := identity.ParseAddress(c.String("contract"))
	if err != nil {
		return fmt.Errorf("--contract: %w", err)
	}
	owner, err := identity.ParseAddress(c.String("owner"))
	if err != nil {
		return fmt.Errorf("--owner: %w", err)
	}

	client, err := vault.Dial(c.Context, c.String("rpc-url"), contract)
	if err != nil {
		return err
	}
	defer client.Close()

	if chainID, err := client.ChainID(c.Context); err == nil && chainID.Int64() != c.Int64("chain-id") {
		fmt.Fprintf(c.App.ErrWriter, "warning: RPC serves chain %s, domain uses %d\n", chainID, c.Int64("chain-id"))
	}

	nonce, err := client.Nonce(c.Context, owner)
	if err != nil {
		return err
	}
	balance, err := client.Balance(c.Context, owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "nonce:   %s\nbalance: %s\n", nonce, authz.FormatAmount(balance, int32(c.Int("decimals"))))
	return nil
}
