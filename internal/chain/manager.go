package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ihrahat0/whalespad-sub001/internal/config"
	"github.com/ihrahat0/whalespad-sub001/internal/logger"
)

var (
	// ErrUnsupportedChain 未配置的链
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrInvalidAddress 非法合约地址
	ErrInvalidAddress = errors.New("invalid contract address")
)

// ChainUnavailableError RPC 暂时不可用，下一轮重试
type ChainUnavailableError struct {
	ChainId int64
	Address string
	Err     error
}

func (e *ChainUnavailableError) Error() string {
	return fmt.Sprintf("chain %d unavailable reading pool %s: %v", e.ChainId, e.Address, e.Err)
}

func (e *ChainUnavailableError) Unwrap() error {
	return e.Err
}

type chainClient struct {
	name    string
	cfg     config.ChainConfig
	client  *ethclient.Client // 测试注入时为空
	caller  bind.ContractCaller
	poolABI abi.ABI
}

// Manager 多链只读管理器
type Manager struct {
	mu        sync.RWMutex
	chains    map[int64]*chainClient
	contracts map[string]*Contract // "chainId:address" -> Contract
}

// NewManager 为所有启用的链创建客户端
func NewManager(cfgs map[string]config.ChainConfig) (*Manager, error) {
	m := newManager()

	for name, cfg := range cfgs {
		if !cfg.Enabled {
			logger.Info("Skipping disabled chain: %s", name)
			continue
		}
		if err := m.initClient(name, cfg); err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to initialize chain %s: %w", name, err)
		}
	}

	logger.Info("Chain manager initialized with %d chains", len(m.chains))
	return m, nil
}

func newManager() *Manager {
	return &Manager{
		chains:    make(map[int64]*chainClient),
		contracts: make(map[string]*Contract),
	}
}

// initClient 初始化客户端
func (m *Manager) initClient(name string, cfg config.ChainConfig) error {
	logger.Info("Initializing chain client %s (type: %s, id: %d)", name, cfg.ChainType, cfg.ChainId)

	if cfg.RpcUrl == "" {
		return fmt.Errorf("no RPC URL configured")
	}
	if _, exists := m.chains[cfg.ChainId]; exists {
		return fmt.Errorf("duplicate chain id %d", cfg.ChainId)
	}

	poolABI := DefaultPoolABI()
	if cfg.ABIPath != "" {
		loaded, err := LoadABI(cfg.ABIPath)
		if err != nil {
			return err
		}
		poolABI = loaded
	}

	client, err := ethclient.Dial(cfg.RpcUrl)
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.ChainType, err)
	}

	m.chains[cfg.ChainId] = &chainClient{
		name:    name,
		cfg:     cfg,
		client:  client,
		caller:  client,
		poolABI: poolABI,
	}
	logger.Info("Successfully created %s client", name)
	return nil
}

// RegisterCaller 注册自定义调用端（例如测试桩或模拟链）
func (m *Manager) RegisterCaller(chainId int64, caller bind.ContractCaller, poolABI abi.ABI) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chains[chainId] = &chainClient{
		name:    fmt.Sprintf("chain-%d", chainId),
		cfg:     config.ChainConfig{ChainId: chainId, Enabled: true},
		caller:  caller,
		poolABI: poolABI,
	}
	for key, c := range m.contracts {
		if c.GetChainId() == chainId {
			delete(m.contracts, key)
		}
	}
}

// GetPoolStats 读取募资池统计，RPC 失败返回 *ChainUnavailableError
func (m *Manager) GetPoolStats(ctx context.Context, contractAddress string, chainId int64) (PoolStats, error) {
	contract, err := m.getContract(contractAddress, chainId)
	if err != nil {
		return PoolStats{}, err
	}

	stats, err := contract.PoolStats(ctx)
	if err != nil {
		return PoolStats{}, &ChainUnavailableError{ChainId: chainId, Address: contractAddress, Err: err}
	}
	return stats, nil
}

// getContract 获取或创建合约绑定
func (m *Manager) getContract(contractAddress string, chainId int64) (*Contract, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, contractAddress)
	}
	address := common.HexToAddress(contractAddress)
	key := fmt.Sprintf("%d:%s", chainId, address.Hex())

	m.mu.RLock()
	contract, exists := m.contracts[key]
	m.mu.RUnlock()
	if exists {
		return contract, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if contract, exists := m.contracts[key]; exists {
		return contract, nil
	}
	cc, ok := m.chains[chainId]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedChain, chainId)
	}
	contract = NewContract(cc.caller, address, cc.poolABI, chainId)
	m.contracts[key] = contract
	return contract, nil
}

// GetChainIds 获取所有链ID
func (m *Manager) GetChainIds() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.chains))
	for id := range m.chains {
		ids = append(ids, id)
	}
	return ids
}

// GetHealthStatus 获取健康状态
func (m *Manager) GetHealthStatus(ctx context.Context) map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chains := make(map[string]interface{}, len(m.chains))
	for chainId, cc := range m.chains {
		status := map[string]interface{}{
			"chain_type":    cc.cfg.ChainType,
			"chain_id":      chainId,
			"client_status": "connected",
		}
		if cc.client == nil {
			status["client_status"] = "custom"
		} else if block, err := cc.client.BlockNumber(ctx); err != nil {
			status["client_status"] = "disconnected"
			status["error"] = err.Error()
		} else {
			status["block_number"] = block
		}
		chains[cc.name] = status
	}

	return map[string]interface{}{
		"chains":           chains,
		"cached_contracts": len(m.contracts),
	}
}

// Close 关闭所有客户端
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cc := range m.chains {
		if cc.client != nil {
			cc.client.Close()
		}
	}
	logger.Info("Chain manager closed")
}
