package vault

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	vaultAddr = common.HexToAddress("0xc4eD1724823147f891c8B981F5983Ce5fbA791ae")
	owner     = common.HexToAddress("0xabc1230000000000000000000000000000000000")
)

// fakeCaller answers eth_call from fixed per-method values.
type fakeCaller struct {
	values map[string]*big.Int
	err    error
	calls  []ethereum.CallMsg
}

func (f *fakeCaller) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, msg)
	if f.err != nil {
		return nil, f.err
	}
	for name, v := range f.values {
		m := parsedABI.Methods[name]
		if bytes.HasPrefix(msg.Data, m.ID) {
			return m.Outputs.Pack(v)
		}
	}
	return nil, errors.New("execution reverted")
}

func TestNonceAndBalance(t *testing.T) {
	bal, _ := new(big.Int).SetString("2500000000000000000", 10)
	fc := &fakeCaller{values: map[string]*big.Int{
		"nonces":     big.NewInt(3),
		"getBalance": bal,
	}}
	c := New(vaultAddr, fc)
	ctx := context.Background()

	n, err := c.Nonce(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Int64())

	b, err := c.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 0, b.Cmp(bal))

	require.Len(t, fc.calls, 2)
	assert.Equal(t, vaultAddr, *fc.calls[0].To)

	// The owner address is the single ABI argument.
	want, err := parsedABI.Pack("nonces", owner)
	require.NoError(t, err)
	assert.Equal(t, want, fc.calls[0].Data)
}

func TestCallError(t *testing.T) {
	c := New(vaultAddr, &fakeCaller{err: errors.New("connection refused")})
	_, err := c.Nonce(context.Background(), owner)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonces")
}

func TestChainIDWithoutRPC(t *testing.T) {
	c := New(vaultAddr, &fakeCaller{})
	_, err := c.ChainID(context.Background())
	assert.Error(t, err)
	c.Close()
}

func TestDialRequiresURL(t *testing.T) {
	_, err := Dial(context.Background(), "", vaultAddr)
	assert.Error(t, err)
}
