package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/omni/bridge-tx-tracker/entity"
)

var ErrRouteNotFound = fmt.Errorf("%w: route not found", entity.ErrConfiguration)

const (
	defaultRelayerTimeout  = 10 * time.Second
	defaultRelayerPageSize = 100
	defaultDelayCacheTTL   = 5 * time.Minute
	defaultDelayCacheSize  = 128
	defaultPollerInterval  = 20 * time.Second
	defaultSyncInterval    = time.Minute
	defaultSyncTimeout     = 30 * time.Second
)

type RPCConfig struct {
	Host    string        `yaml:"host"`
	Timeout time.Duration `yaml:"timeout"`
}

type ChainConfig struct {
	Name    string     `yaml:"-"`
	RPC     *RPCConfig `yaml:"rpc"`
	ChainID uint64     `yaml:"chain_id"`
}

// RouteConfig lists the contracts deployed on one chain that serve
// messages exchanged with a peer chain.
type RouteConfig struct {
	BridgeAddress        common.Address `yaml:"bridge_address"`
	SignalServiceAddress common.Address `yaml:"signal_service_address"`
	QuotaManagerAddress  common.Address `yaml:"quota_manager_address"`
	ERC20VaultAddress    common.Address `yaml:"erc20_vault_address"`
	ERC721VaultAddress   common.Address `yaml:"erc721_vault_address"`
	ERC1155VaultAddress  common.Address `yaml:"erc1155_vault_address"`
}

// Routing is keyed by the chain the contracts live on, then by the peer chain.
type Routing map[uint64]map[uint64]*RouteConfig

func (r Routing) Get(onChainID, peerChainID uint64) (*RouteConfig, error) {
	route, ok := r[onChainID][peerChainID]
	if !ok || route == nil {
		return nil, fmt.Errorf("no contracts on chain %d for peer chain %d: %w", onChainID, peerChainID, ErrRouteNotFound)
	}
	return route, nil
}

func (r Routing) IsSupportedChain(chainID uint64) bool {
	_, ok := r[chainID]
	return ok
}

type TokenConfig struct {
	Name      string                    `yaml:"name"`
	Symbol    string                    `yaml:"symbol"`
	Decimals  uint8                     `yaml:"decimals"`
	Type      entity.TokenType          `yaml:"type"`
	Addresses map[string]common.Address `yaml:"addresses"`
}

type RelayerConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize uint          `yaml:"page_size"`
}

type GasLimitsConfig struct {
	ETH                uint64 `yaml:"eth_gas_limit"`
	ERC20NotDeployed   uint64 `yaml:"erc20_not_deployed_gas_limit"`
	ERC20Deployed      uint64 `yaml:"erc20_deployed_gas_limit"`
	ERC721NotDeployed  uint64 `yaml:"erc721_not_deployed_gas_limit"`
	ERC721Deployed     uint64 `yaml:"erc721_deployed_gas_limit"`
	ERC1155NotDeployed uint64 `yaml:"erc1155_not_deployed_gas_limit"`
	ERC1155Deployed    uint64 `yaml:"erc1155_deployed_gas_limit"`
}

type DelayConfig struct {
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

type PollerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type SyncConfig struct {
	Interval  time.Duration    `yaml:"interval"`
	Timeout   time.Duration    `yaml:"timeout"`
	Addresses []common.Address `yaml:"addresses"`
}

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"database"`
}

type PresenterConfig struct {
	Host string `yaml:"host"`
}

type Config struct {
	Chains    map[string]*ChainConfig            `yaml:"chains"`
	Routes    map[string]map[string]*RouteConfig `yaml:"routing"`
	Routing   Routing                            `yaml:"-"`
	Tokens    []*TokenConfig                     `yaml:"tokens"`
	Relayer   *RelayerConfig                     `yaml:"relayer"`
	GasLimits *GasLimitsConfig                   `yaml:"fees"`
	Delays    *DelayConfig                       `yaml:"invocation_delays"`
	Poller    *PollerConfig                      `yaml:"poller"`
	Sync      *SyncConfig                        `yaml:"sync"`
	DBConfig  *DBConfig                          `yaml:"postgres"`
	LogLevel  logrus.Level                       `yaml:"log_level"`
	Presenter *PresenterConfig                   `yaml:"presenter"`
}

func (cfg *Config) chainID(name string) (uint64, error) {
	chain, ok := cfg.Chains[name]
	if !ok {
		return 0, fmt.Errorf("unknown chain %s: %w", name, entity.ErrConfiguration)
	}
	return chain.ChainID, nil
}

// TokenAddresses resolves the per-chain-name token addresses into per-chain-id ones.
func (cfg *Config) TokenAddresses(token *TokenConfig) map[uint64]common.Address {
	res := make(map[uint64]common.Address, len(token.Addresses))
	for name, addr := range token.Addresses {
		if chain, ok := cfg.Chains[name]; ok {
			res[chain.ChainID] = addr
		}
	}
	return res
}

// TokensBySymbol builds the token entities, keyed by upper-cased symbol.
func (cfg *Config) TokensBySymbol() map[string]*entity.Token {
	res := make(map[string]*entity.Token, len(cfg.Tokens))
	for _, token := range cfg.Tokens {
		res[strings.ToUpper(token.Symbol)] = &entity.Token{
			Name:      token.Name,
			Symbol:    token.Symbol,
			Decimals:  token.Decimals,
			Addresses: cfg.TokenAddresses(token),
			Type:      token.Type,
		}
	}
	return res
}

func defaultGasLimits() *GasLimitsConfig {
	return &GasLimitsConfig{
		ETH:                900_000,
		ERC20NotDeployed:   3_100_000,
		ERC20Deployed:      1_100_000,
		ERC721NotDeployed:  2_400_000,
		ERC721Deployed:     1_100_000,
		ERC1155NotDeployed: 2_600_000,
		ERC1155Deployed:    1_100_000,
	}
}

// fillDefaults replaces every unset limit with its default value.
func (g *GasLimitsConfig) fillDefaults() {
	defaults := defaultGasLimits()
	for _, limit := range []struct {
		value *uint64
		def   uint64
	}{
		{&g.ETH, defaults.ETH},
		{&g.ERC20NotDeployed, defaults.ERC20NotDeployed},
		{&g.ERC20Deployed, defaults.ERC20Deployed},
		{&g.ERC721NotDeployed, defaults.ERC721NotDeployed},
		{&g.ERC721Deployed, defaults.ERC721Deployed},
		{&g.ERC1155NotDeployed, defaults.ERC1155NotDeployed},
		{&g.ERC1155Deployed, defaults.ERC1155Deployed},
	} {
		if *limit.value == 0 {
			*limit.value = limit.def
		}
	}
}

func (cfg *Config) init() error {
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("no chains configured: %w", entity.ErrConfiguration)
	}
	for name, chain := range cfg.Chains {
		if chain.RPC == nil || chain.RPC.Host == "" {
			return fmt.Errorf("chain %s has no rpc host: %w", name, entity.ErrConfiguration)
		}
		chain.Name = name
	}

	cfg.Routing = make(Routing, len(cfg.Routes))
	for onChain, peers := range cfg.Routes {
		onChainID, err := cfg.chainID(onChain)
		if err != nil {
			return err
		}
		cfg.Routing[onChainID] = make(map[uint64]*RouteConfig, len(peers))
		for peerChain, route := range peers {
			peerChainID, err2 := cfg.chainID(peerChain)
			if err2 != nil {
				return err2
			}
			cfg.Routing[onChainID][peerChainID] = route
		}
	}

	for _, token := range cfg.Tokens {
		if !token.Type.IsValid() {
			return fmt.Errorf("token %s has unknown type %q: %w", token.Symbol, token.Type, entity.ErrConfiguration)
		}
		for chainName := range token.Addresses {
			if _, err := cfg.chainID(chainName); err != nil {
				return err
			}
		}
	}

	if cfg.Relayer == nil || cfg.Relayer.URL == "" {
		return fmt.Errorf("relayer url is not set: %w", entity.ErrConfiguration)
	}
	if cfg.Relayer.Timeout == 0 {
		cfg.Relayer.Timeout = defaultRelayerTimeout
	}
	if cfg.Relayer.PageSize == 0 {
		cfg.Relayer.PageSize = defaultRelayerPageSize
	}
	if cfg.GasLimits == nil {
		cfg.GasLimits = &GasLimitsConfig{}
	}
	cfg.GasLimits.fillDefaults()
	if cfg.Delays == nil {
		cfg.Delays = &DelayConfig{}
	}
	if cfg.Delays.CacheTTL == 0 {
		cfg.Delays.CacheTTL = defaultDelayCacheTTL
	}
	if cfg.Delays.CacheSize == 0 {
		cfg.Delays.CacheSize = defaultDelayCacheSize
	}
	if cfg.Poller == nil {
		cfg.Poller = &PollerConfig{}
	}
	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = defaultPollerInterval
	}
	if cfg.Sync == nil {
		cfg.Sync = &SyncConfig{}
	}
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = defaultSyncInterval
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = defaultSyncTimeout
	}
	return nil
}

func ReadConfigWithEnv(blob []byte) (*Config, error) {
	cfg := &Config{LogLevel: logrus.InfoLevel}
	if err := parseYaml(cfg, []byte(os.ExpandEnv(string(blob)))); err != nil {
		return nil, err
	}
	if err := cfg.init(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func ReadConfigFromFile(path string) (*Config, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s does not exist: %w", path, err)
		}
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return ReadConfigWithEnv(blob)
}
