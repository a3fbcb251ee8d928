package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// 募资池合约只读接口ABI
const poolABIJSON = `[
	{"inputs": [], "name": "totalRaised", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"inputs": [], "name": "hardCap", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"},
	{"inputs": [], "name": "participantCount", "outputs": [{"name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

// DefaultPoolABI 内置募资池ABI
func DefaultPoolABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(poolABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in pool ABI: %v", err))
	}
	return parsed
}

// LoadABI 从文件加载ABI，支持完整编译输出或纯ABI数组
func LoadABI(path string) (abi.ABI, error) {
	abiData, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to load ABI from %s: %w", path, err)
	}

	// 尝试解析为完整的编译输出文件
	var compiledOutput struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(abiData, &compiledOutput); err == nil && compiledOutput.ABI != nil {
		parsed, err := abi.JSON(bytes.NewReader(compiledOutput.ABI))
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to parse ABI from compiled output: %w", err)
		}
		return parsed, nil
	}

	parsed, err := abi.JSON(bytes.NewReader(abiData))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}

// PoolStats 募资池链上统计
type PoolStats struct {
	TotalRaised      *big.Int
	HardCap          *big.Int
	ParticipantCount uint64
}

// Contract 募资池合约
type Contract struct {
	address  common.Address
	chainId  int64
	contract *bind.BoundContract
}

// NewContract 创建只读合约绑定
func NewContract(caller bind.ContractCaller, address common.Address, poolABI abi.ABI, chainId int64) *Contract {
	return &Contract{
		address:  address,
		chainId:  chainId,
		contract: bind.NewBoundContract(address, poolABI, caller, nil, nil),
	}
}

// GetAddress 获取合约地址
func (c *Contract) GetAddress() common.Address {
	return c.address
}

// GetChainId 获取链ID
func (c *Contract) GetChainId() int64 {
	return c.chainId
}

// PoolStats 读取募资总额、硬顶与参与人数
func (c *Contract) PoolStats(ctx context.Context) (PoolStats, error) {
	totalRaised, err := c.callUint(ctx, "totalRaised")
	if err != nil {
		return PoolStats{}, err
	}
	hardCap, err := c.callUint(ctx, "hardCap")
	if err != nil {
		return PoolStats{}, err
	}
	participants, err := c.callUint(ctx, "participantCount")
	if err != nil {
		return PoolStats{}, err
	}
	if !participants.IsUint64() {
		return PoolStats{}, fmt.Errorf("participantCount overflows uint64: %s", participants)
	}

	return PoolStats{
		TotalRaised:      totalRaised,
		HardCap:          hardCap,
		ParticipantCount: participants.Uint64(),
	}, nil
}

func (c *Contract) callUint(ctx context.Context, method string) (*big.Int, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, c.address.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result", method, c.address.Hex())
	}
	value, ok := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	if !ok {
		return nil, fmt.Errorf("call %s on %s: unexpected result type %T", method, c.address.Hex(), out[0])
	}
	return value, nil
}
