// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// gRPC 服务配置
	GRPC GRPCConfig `mapstructure:"grpc"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	// 行情配置
	MarketData MarketDataConfig `mapstructure:"market_data"`
	// 定价引擎配置
	Engine EngineConfig `mapstructure:"engine"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// 监听端口
	Port int `mapstructure:"port" default:"8080"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"30"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"30"`
	// 最大连接数
	MaxConnections int `mapstructure:"max_connections" default:"1000"`
	// 单次定价请求超时（秒），0 表示不限制
	RequestTimeout int `mapstructure:"request_timeout" default:"30"`
}

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	// 监听地址
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// 监听端口
	Port int `mapstructure:"port" default:"50051"`
	// 最大并发流数
	MaxConcurrentStreams int `mapstructure:"max_concurrent_streams" default:"1000"`
	// 连接空闲超时（秒）
	IdleTimeout int `mapstructure:"idle_timeout" default:"300"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, sqlite
	Driver string `mapstructure:"driver" default:"mysql"`
	// 数据源名称，为空时不持久化
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns" default:"25"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"5"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// 是否启用日志
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用，未启用时使用进程内缓存
	Enabled bool `mapstructure:"enabled" default:"false"`
	// 主机地址
	Host string `mapstructure:"host" default:"localhost"`
	// 端口
	Port int `mapstructure:"port" default:"6379"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db" default:"0"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size" default:"10"`
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout" default:"5"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"3"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"3"`
	// 缓存过期时间（秒）
	CacheTTL int `mapstructure:"cache_ttl" default:"900"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表，为空时不发布事件
	Brokers []string `mapstructure:"brokers"`
	// 定价报告主题
	Topic string `mapstructure:"topic" default:"pricing.reports"`
	// outbox 投递间隔（毫秒），配置数据库时事件经 outbox 投递
	OutboxInterval int `mapstructure:"outbox_interval" default:"1000"`
	// Consumer Group ID
	GroupID string `mapstructure:"group_id"`
	// 分区数
	Partitions int `mapstructure:"partitions" default:"3"`
	// 副本数
	Replication int `mapstructure:"replication" default:"1"`
	// 消费者超时（秒）
	SessionTimeout int `mapstructure:"session_timeout" default:"10"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	// 日志级别
	Level string `mapstructure:"level" default:"info"`
	// 输出格式
	Format string `mapstructure:"format" default:"json"`
	// 输出目标
	Output string `mapstructure:"output" default:"stdout"`
	// 文件路径
	FilePath string `mapstructure:"file_path" default:"logs/app.log"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size" default:"100"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups" default:"10"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age" default:"30"`
	// 是否压缩
	Compress bool `mapstructure:"compress" default:"true"`
	// 是否输出调用者信息
	WithCaller bool `mapstructure:"with_caller" default:"true"`
	// 是否输出堆栈跟踪
	WithStacktrace bool `mapstructure:"with_stacktrace" default:"false"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Prometheus 监听端口
	Port int `mapstructure:"port" default:"9090"`
	// 指标路径
	Path string `mapstructure:"path" default:"/metrics"`
}

// RateLimitConfig 限流配置，依赖 Redis
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"false"`
	// 每秒请求数
	QPS int `mapstructure:"qps" default:"100"`
	// 突发容量
	Burst int `mapstructure:"burst" default:"200"`
}

// MarketDataConfig 行情源配置
type MarketDataConfig struct {
	// 收盘价历史 CSV（symbol,date,close），为空时使用空的内存行情源
	HistoryFile string `mapstructure:"history_file"`
}

// EngineConfig 定价引擎默认参数，请求未指定时使用
type EngineConfig struct {
	// 二叉树步数
	LatticeSteps int `mapstructure:"lattice_steps" default:"500"`
	// 蒙特卡洛样本数（对偶路径对）
	MCPaths int `mapstructure:"mc_paths" default:"100000"`
	// 每批样本数
	MCBatchSize int `mapstructure:"mc_batch_size" default:"10000"`
	// 并发批次数，0 表示 GOMAXPROCS
	MCWorkers int `mapstructure:"mc_workers" default:"0"`
	// 路径依赖期权的观察点数
	MonitoringSteps int `mapstructure:"monitoring_steps" default:"252"`
	// 是否启用控制变量
	ControlVariate bool `mapstructure:"control_variate" default:"true"`
	// 希腊字母模式：AUTO, FINITE_DIFFERENCE
	GreekMode string `mapstructure:"greek_mode" default:"AUTO"`
	// 是否默认计算希腊字母
	ComputeGreeks bool `mapstructure:"compute_greeks" default:"true"`
	// 差分扰动
	Bumps BumpConfig `mapstructure:"bumps"`
	// 隐含波动率求解
	Calibration CalibrationConfig `mapstructure:"calibration"`
	// GARCH 预测
	Forecast ForecastConfig `mapstructure:"forecast"`
	// 技术指标窗口
	Indicators IndicatorConfig `mapstructure:"indicators"`
	// 组合定价并发数
	PortfolioWorkers int `mapstructure:"portfolio_workers" default:"8"`
}

// BumpConfig 差分扰动大小
type BumpConfig struct {
	Spot float64 `mapstructure:"spot" default:"0.01"`
	Vol  float64 `mapstructure:"vol" default:"0.01"`
	Rate float64 `mapstructure:"rate" default:"0.0001"`
	Time float64 `mapstructure:"time" default:"0.00274"`
}

// CalibrationConfig 隐含波动率求解参数
type CalibrationConfig struct {
	LowerBound    float64 `mapstructure:"lower_bound" default:"0.0001"`
	UpperBound    float64 `mapstructure:"upper_bound" default:"5.0"`
	Tolerance     float64 `mapstructure:"tolerance" default:"1e-8"`
	MaxIterations int     `mapstructure:"max_iterations" default:"100"`
}

// ForecastConfig 波动率预测参数
type ForecastConfig struct {
	AROrder         int     `mapstructure:"ar_order" default:"1"`
	GARCHP          int     `mapstructure:"garch_p" default:"1"`
	GARCHQ          int     `mapstructure:"garch_q" default:"1"`
	MinObservations int     `mapstructure:"min_observations" default:"30"`
	Horizon         int     `mapstructure:"horizon" default:"10"`
	PeriodsPerYear  float64 `mapstructure:"periods_per_year" default:"252"`
	ConfidenceLevel float64 `mapstructure:"confidence_level" default:"0.95"`
	MaxIterations   int     `mapstructure:"max_iterations" default:"5000"`
}

// IndicatorConfig 技术指标窗口
type IndicatorConfig struct {
	ShortWindow int `mapstructure:"short_window" default:"20"`
	LongWindow  int `mapstructure:"long_window" default:"50"`
	SignalSpan  int `mapstructure:"signal_span" default:"9"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// 设置配置文件
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 设置环境变量前缀
	v.SetEnvPrefix("APP")
	// 自动绑定环境变量（使用 _ 替代 .）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults 从 TOML 文件加载配置，使用默认值
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 设置配置文件
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// 读取配置文件（如果不存在则忽略）
	_ = v.ReadInConfig()

	// 设置环境变量前缀
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 验证配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	if c.Database.DSN != "" && c.Database.Driver != "mysql" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	if c.RateLimit.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("ratelimit requires redis to be enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.QPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid ratelimit qps/burst: %d/%d", c.RateLimit.QPS, c.RateLimit.Burst)
	}
	if c.Engine.PortfolioWorkers < 1 {
		return fmt.Errorf("invalid engine portfolio_workers: %d", c.Engine.PortfolioWorkers)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.max_connections", 1000)
	v.SetDefault("http.request_timeout", 30)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.max_concurrent_streams", 1000)
	v.SetDefault("grpc.idle_timeout", 300)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)
	v.SetDefault("redis.cache_ttl", 900)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)
	v.SetDefault("logger.with_stacktrace", false)

	v.SetDefault("kafka.topic", "pricing.reports")
	v.SetDefault("kafka.outbox_interval", 1000)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.qps", 100)
	v.SetDefault("ratelimit.burst", 200)

	v.SetDefault("engine.lattice_steps", 500)
	v.SetDefault("engine.mc_paths", 100000)
	v.SetDefault("engine.mc_batch_size", 10000)
	v.SetDefault("engine.mc_workers", 0)
	v.SetDefault("engine.monitoring_steps", 252)
	v.SetDefault("engine.control_variate", true)
	v.SetDefault("engine.greek_mode", "AUTO")
	v.SetDefault("engine.compute_greeks", true)
	v.SetDefault("engine.bumps.spot", 0.01)
	v.SetDefault("engine.bumps.vol", 0.01)
	v.SetDefault("engine.bumps.rate", 1e-4)
	v.SetDefault("engine.bumps.time", 1.0/365.0)
	v.SetDefault("engine.calibration.lower_bound", 1e-4)
	v.SetDefault("engine.calibration.upper_bound", 5.0)
	v.SetDefault("engine.calibration.tolerance", 1e-8)
	v.SetDefault("engine.calibration.max_iterations", 100)
	v.SetDefault("engine.forecast.ar_order", 1)
	v.SetDefault("engine.forecast.garch_p", 1)
	v.SetDefault("engine.forecast.garch_q", 1)
	v.SetDefault("engine.forecast.min_observations", 30)
	v.SetDefault("engine.forecast.horizon", 10)
	v.SetDefault("engine.forecast.periods_per_year", 252)
	v.SetDefault("engine.forecast.confidence_level", 0.95)
	v.SetDefault("engine.forecast.max_iterations", 5000)
	v.SetDefault("engine.indicators.short_window", 20)
	v.SetDefault("engine.indicators.long_window", 50)
	v.SetDefault("engine.indicators.signal_span", 9)
	v.SetDefault("engine.portfolio_workers", 8)
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
