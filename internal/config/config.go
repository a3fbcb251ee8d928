package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ihrahat0/whalespad-sub001/internal/phase"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Database  DatabaseConfig         `mapstructure:"database"`
	Redis     RedisConfig            `mapstructure:"redis"`
	Chains    map[string]ChainConfig `mapstructure:"chains"`
	Chain     ChainPollConfig        `mapstructure:"chain"`
	Scheduler SchedulerConfig        `mapstructure:"scheduler"`
	Phase     PhaseConfig            `mapstructure:"phase"`
	Notify    NotifyConfig           `mapstructure:"notify"`
	Log       LogConfig              `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// RedisConfig 视图缓存与通知队列共用，Addr 为空时两者都关闭
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	ViewTTL  int    `mapstructure:"view_ttl"` // 秒
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType string `mapstructure:"chain_type"` // 链类型 (ethereum, polygon, etc.)
	ChainId   int64  `mapstructure:"chain_id"`   // 链ID
	RpcUrl    string `mapstructure:"rpc_url"`    // RPC节点URL
	ABIPath   string `mapstructure:"abi_path"`   // 募资池ABI文件，为空时使用内置ABI
	Enabled   bool   `mapstructure:"enabled"`
}

// ChainPollConfig 链上同步参数
type ChainPollConfig struct {
	RPCTimeout  int `mapstructure:"rpc_timeout_seconds"` // 单次RPC超时
	Concurrency int `mapstructure:"concurrency"`         // 同步协程数
}

type SchedulerConfig struct {
	TransitionPollInterval int `mapstructure:"transition_poll_interval_seconds"`
	ChainPollInterval      int `mapstructure:"chain_poll_interval_seconds"`
	StopTimeout            int `mapstructure:"stop_timeout_seconds"`
}

// PhaseConfig 缺省锚点偏移
type PhaseConfig struct {
	WhitelistLead    time.Duration `mapstructure:"whitelist_lead"`
	WhitelistEndLead time.Duration `mapstructure:"whitelist_end_lead"`
	ClaimDelay       time.Duration `mapstructure:"claim_delay"`
	ListingDelay     time.Duration `mapstructure:"listing_delay"`
}

// Offsets 转换为阶段引擎的偏移表
func (p PhaseConfig) Offsets() phase.Offsets {
	return phase.Offsets{
		WhitelistLead:    p.WhitelistLead,
		WhitelistEndLead: p.WhitelistEndLead,
		ClaimDelay:       p.ClaimDelay,
		ListingDelay:     p.ListingDelay,
	}
}

type NotifyConfig struct {
	QueueEnabled bool   `mapstructure:"queue_enabled"` // 阶段变更是否投递到 asynq
	Queue        string `mapstructure:"queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.Config 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.Config 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.Config 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// TransitionInterval 阶段调度间隔
func (c *Config) TransitionInterval() time.Duration {
	return time.Duration(c.Scheduler.TransitionPollInterval) * time.Second
}

// ChainInterval 链上同步间隔
func (c *Config) ChainInterval() time.Duration {
	return time.Duration(c.Scheduler.ChainPollInterval) * time.Second
}

// ViewTTL 活动缓存有效期
func (c *Config) ViewTTL() time.Duration {
	return time.Duration(c.Redis.ViewTTL) * time.Second
}

// StopTimeout 停止时等待运行中任务的时长
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Scheduler.StopTimeout) * time.Second
}

// RPCTimeout 单次RPC超时
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.Chain.RPCTimeout) * time.Second
}

// Validate 启动前校验，非法配置直接拒绝启动
func (c *Config) Validate() error {
	var errs []error
	if c.Scheduler.TransitionPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.transition_poll_interval_seconds must be positive, got %d", c.Scheduler.TransitionPollInterval))
	}
	if c.Scheduler.ChainPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.chain_poll_interval_seconds must be positive, got %d", c.Scheduler.ChainPollInterval))
	}
	if c.Chain.RPCTimeout <= 0 {
		errs = append(errs, fmt.Errorf("chain.rpc_timeout_seconds must be positive, got %d", c.Chain.RPCTimeout))
	}
	if c.Chain.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("chain.concurrency must be positive, got %d", c.Chain.Concurrency))
	}
	for name, d := range map[string]time.Duration{
		"phase.whitelist_lead":     c.Phase.WhitelistLead,
		"phase.whitelist_end_lead": c.Phase.WhitelistEndLead,
		"phase.claim_delay":        c.Phase.ClaimDelay,
		"phase.listing_delay":      c.Phase.ListingDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.Phase.WhitelistEndLead > c.Phase.WhitelistLead {
		errs = append(errs, errors.New("phase.whitelist_end_lead must not exceed phase.whitelist_lead"))
	}
	if c.Phase.ClaimDelay > c.Phase.ListingDelay {
		errs = append(errs, errors.New("phase.claim_delay must not exceed phase.listing_delay"))
	}
	if c.Notify.QueueEnabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("notify.queue_enabled requires redis.addr"))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	offsets := phase.DefaultOffsets()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ido")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.view_ttl", 30)
	v.SetDefault("chain.rpc_timeout_seconds", 10)
	v.SetDefault("chain.concurrency", 8)
	v.SetDefault("scheduler.transition_poll_interval_seconds", 30)
	v.SetDefault("scheduler.chain_poll_interval_seconds", 60)
	v.SetDefault("scheduler.stop_timeout_seconds", 30)
	v.SetDefault("phase.whitelist_lead", offsets.WhitelistLead)
	v.SetDefault("phase.whitelist_end_lead", offsets.WhitelistEndLead)
	v.SetDefault("phase.claim_delay", offsets.ClaimDelay)
	v.SetDefault("phase.listing_delay", offsets.ListingDelay)
	v.SetDefault("notify.queue_enabled", false)
	v.SetDefault("notify.queue", "notifications")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Load 读取配置文件与环境变量，path 为空时按默认目录查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ido")
	}

	setDefaults(v)

	// 自动读取环境变量，例如 SCHEDULER_CHAIN_POLL_INTERVAL_SECONDS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
