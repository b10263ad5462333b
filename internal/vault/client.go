// Package vault reads the two values a user needs from the vault contract
// before asking for an authorization: the current nonce and the balance.
// The signing path never calls it.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ABI covers only the view functions used here.
const ABI = `[
  {"type":"function","name":"nonces","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getBalance","stateMutability":"view",
   "inputs":[{"name":"user","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

var parsedABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(ABI))
	if err != nil {
		panic(fmt.Sprintf("vault: bad ABI: %v", err))
	}
	return a
}()

type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	addr     common.Address
}

// Dial connects to rpcURL and binds the vault at addr.
func Dial(ctx context.Context, rpcURL string, addr common.Address) (*Client, error) {
	if rpcURL == "" {
		return nil, errors.New("vault: RPC_URL is not set")
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	c := New(addr, eth)
	c.eth = eth
	return c, nil
}

// New binds the vault at addr using any contract caller.
func New(addr common.Address, caller bind.ContractCaller) *Client {
	return &Client{
		contract: bind.NewBoundContract(addr, parsedABI, caller, nil, nil),
		addr:     addr,
	}
}

func (c *Client) Address() common.Address { return c.addr }

// Nonce returns the next nonce the vault expects from owner.
func (c *Client) Nonce(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, "nonces", owner)
}

// Balance returns owner's deposited balance in the asset's smallest unit.
func (c *Client) Balance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, "getBalance", owner)
}

// ChainID reports the chain the RPC endpoint serves.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c.eth == nil {
		return nil, errors.New("vault: no rpc connection")
	}
	return c.eth.ChainID(ctx)
}

func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

func (c *Client) callUint(ctx context.Context, method string, owner common.Address) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, owner); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s: unexpected output count %d", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, out[0])
	}
	return v, nil
}
