package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const poolAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// fakeCaller 按方法选择器返回打包好的 uint256
type fakeCaller struct {
	abi     abi.ABI
	values  map[string]*big.Int
	err     error
	delay   time.Duration
	calls   atomic.Int64
	targets []common.Address
}

func newFakeCaller(values map[string]*big.Int) *fakeCaller {
	return &fakeCaller{abi: DefaultPoolABI(), values: values}
}

func (f *fakeCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls.Add(1)
	if call.To != nil {
		f.targets = append(f.targets, *call.To)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	for name, method := range f.abi.Methods {
		if bytes.Equal(call.Data[:4], method.ID) {
			return method.Outputs.Pack(f.values[name])
		}
	}
	return nil, errors.New("unknown selector")
}

func TestGetPoolStats(t *testing.T) {
	caller := newFakeCaller(map[string]*big.Int{
		"totalRaised":      big.NewInt(120),
		"hardCap":          big.NewInt(200),
		"participantCount": big.NewInt(9),
	})
	m := newManager()
	m.RegisterCaller(1, caller, DefaultPoolABI())

	stats, err := m.GetPoolStats(context.Background(), poolAddress, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(120), stats.TotalRaised.Int64())
	assert.Equal(t, int64(200), stats.HardCap.Int64())
	assert.Equal(t, uint64(9), stats.ParticipantCount)
	assert.Equal(t, int64(3), caller.calls.Load())
	for _, target := range caller.targets {
		assert.Equal(t, common.HexToAddress(poolAddress), target)
	}
}

func TestGetPoolStatsLargeAmounts(t *testing.T) {
	wei, ok := new(big.Int).SetString("123456789000000000000000000", 10)
	require.True(t, ok)
	m := newManager()
	m.RegisterCaller(56, newFakeCaller(map[string]*big.Int{
		"totalRaised":      wei,
		"hardCap":          wei,
		"participantCount": big.NewInt(1),
	}), DefaultPoolABI())

	stats, err := m.GetPoolStats(context.Background(), poolAddress, 56)
	require.NoError(t, err)
	assert.Equal(t, 0, wei.Cmp(stats.TotalRaised))
}

func TestGetPoolStatsRPCFailureIsChainUnavailable(t *testing.T) {
	caller := newFakeCaller(nil)
	caller.err = errors.New("503 service unavailable")
	m := newManager()
	m.RegisterCaller(1, caller, DefaultPoolABI())

	_, err := m.GetPoolStats(context.Background(), poolAddress, 1)
	var unavailable *ChainUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, int64(1), unavailable.ChainId)
	// 第一次调用失败即返回，不在循环内重试
	assert.Equal(t, int64(1), caller.calls.Load())
}

func TestGetPoolStatsTimeout(t *testing.T) {
	caller := newFakeCaller(nil)
	caller.delay = time.Second
	m := newManager()
	m.RegisterCaller(1, caller, DefaultPoolABI())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.GetPoolStats(ctx, poolAddress, 1)
	var unavailable *ChainUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGetPoolStatsRejectsUnknownChainAndBadAddress(t *testing.T) {
	m := newManager()

	_, err := m.GetPoolStats(context.Background(), poolAddress, 999)
	assert.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = m.GetPoolStats(context.Background(), "not-an-address", 1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestGetContractIsCached(t *testing.T) {
	m := newManager()
	m.RegisterCaller(1, newFakeCaller(nil), DefaultPoolABI())

	a, err := m.getContract(poolAddress, 1)
	require.NoError(t, err)
	b, err := m.getContract("0x5fbdb2315678afecb367f032d93f642f64180aa3", 1)
	require.NoError(t, err)
	assert.Same(t, a, b)

	// 重新注册后旧绑定失效
	m.RegisterCaller(1, newFakeCaller(nil), DefaultPoolABI())
	c, err := m.getContract(poolAddress, 1)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestLoadABI(t *testing.T) {
	dir := t.TempDir()

	raw := filepath.Join(dir, "raw.json")
	require.NoError(t, os.WriteFile(raw, []byte(poolABIJSON), 0o600))
	parsed, err := LoadABI(raw)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "totalRaised")

	compiled := filepath.Join(dir, "compiled.json")
	require.NoError(t, os.WriteFile(compiled, []byte(`{"contractName":"Pool","abi":`+poolABIJSON+`}`), 0o600))
	parsed, err = LoadABI(compiled)
	require.NoError(t, err)
	assert.Contains(t, parsed.Methods, "participantCount")

	_, err = LoadABI(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestHealthStatusForCustomCaller(t *testing.T) {
	m := newManager()
	m.RegisterCaller(1, newFakeCaller(nil), DefaultPoolABI())

	health := m.GetHealthStatus(context.Background())
	chains := health["chains"].(map[string]interface{})
	status := chains["chain-1"].(map[string]interface{})
	assert.Equal(t, "custom", status["client_status"])
	assert.ElementsMatch(t, []int64{1}, m.GetChainIds())
}
