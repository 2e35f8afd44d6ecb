// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Network      NetworkConfig      `mapstructure:"network"`
	Deployer     DeployerConfig     `mapstructure:"deployer"`
	Contract     ContractConfig     `mapstructure:"contract"`
	Setup        SetupConfig        `mapstructure:"setup"`
	Output       OutputConfig       `mapstructure:"output"`
	Verification VerificationConfig `mapstructure:"verification"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Notification NotificationConfig `mapstructure:"notification"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// NetworkConfig describes the target network. Name is written into the
// deployment record verbatim.
type NetworkConfig struct {
	Name           string        `mapstructure:"name"`
	NodeURL        string        `mapstructure:"node_url"`
	BackupNodes    []string      `mapstructure:"backup_nodes"`
	ChainID        int64         `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// DeployerConfig contains signing account and confirmation settings
type DeployerConfig struct {
	PrivateKey          string        `mapstructure:"private_key"`
	MinBalance          string        `mapstructure:"min_balance"` // ether units
	Confirmations       uint64        `mapstructure:"confirmations"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	MaxUnknownPolls     int           `mapstructure:"max_unknown_polls"`
	FallbackGasLimit    uint64        `mapstructure:"fallback_gas_limit"`
	GasBufferPercent    uint64        `mapstructure:"gas_buffer_percent"`
}

// ContractConfig locates the compiled contract
type ContractConfig struct {
	Name            string `mapstructure:"name"`
	SourceFile      string `mapstructure:"source_file"`
	ArtifactsDir    string `mapstructure:"artifacts_dir"`
	ArtifactPath    string `mapstructure:"artifact_path"`
	ConstructorArgs string `mapstructure:"constructor_args"` // hex, ABI-encoded
}

// SetupConfig lists the post-deployment configuration steps
type SetupConfig struct {
	AuthorizeDeployer   bool     `mapstructure:"authorize_deployer"`
	AdditionalVerifiers []string `mapstructure:"additional_verifiers"`
}

// OutputConfig contains the locations of the deployment outputs
type OutputConfig struct {
	RecordPath   string `mapstructure:"record_path"`
	ContractsDir string `mapstructure:"contracts_dir"`
}

// VerificationConfig configures the optional block explorer verification
type VerificationConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	APIURL          string        `mapstructure:"api_url"`
	CompilerVersion string        `mapstructure:"compiler_version"`
	SourcePath      string        `mapstructure:"source_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains deployment history database configuration
type StorageConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// MetricsConfig contains metrics export configuration
type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	TextfilePath string `mapstructure:"textfile_path"`
}

// NotificationConfig configures the operator webhook
type NotificationConfig struct {
	WebhookURL      string            `mapstructure:"webhook_url"`
	Headers         map[string]string `mapstructure:"headers"`
	NotifyOnSuccess bool              `mapstructure:"notify_on_success"`
	Timeout         time.Duration     `mapstructure:"timeout"`
	RetryAttempts   int               `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration     `mapstructure:"retry_delay"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	v.SetEnvPrefix("RSK_DEPLOYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with well-known environment variables if present
	if key := os.Getenv("DEPLOYER_PRIVATE_KEY"); key != "" {
		config.Deployer.PrivateKey = key
	}
	if nodeURL := os.Getenv("RSK_NODE_URL"); nodeURL != "" {
		config.Network.NodeURL = nodeURL
	}
	if apiKey := os.Getenv("ETHERSCAN_API_KEY"); apiKey != "" {
		config.Verification.APIKey = apiKey
	}
	if webhook := os.Getenv("DEPLOYER_WEBHOOK_URL"); webhook != "" {
		config.Notification.WebhookURL = webhook
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "rsk-contract-deployer")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	// Network defaults
	v.SetDefault("network.name", "rsk-testnet")
	v.SetDefault("network.node_url", "https://public-node.testnet.rsk.co")
	v.SetDefault("network.chain_id", 31) // RSK Testnet
	v.SetDefault("network.request_timeout", "30s")
	v.SetDefault("network.retry_attempts", 3)
	v.SetDefault("network.retry_delay", "5s")

	// Deployer defaults (RSK block time is ~30 seconds)
	v.SetDefault("deployer.min_balance", "0.1")
	v.SetDefault("deployer.confirmations", 3)
	v.SetDefault("deployer.poll_interval", "5s")
	v.SetDefault("deployer.confirmation_timeout", "15m")
	v.SetDefault("deployer.max_unknown_polls", 12)
	v.SetDefault("deployer.fallback_gas_limit", 6_000_000)
	v.SetDefault("deployer.gas_buffer_percent", 20)

	// Contract defaults
	v.SetDefault("contract.name", "FakeProductIdentification")
	v.SetDefault("contract.source_file", "Project.sol")
	v.SetDefault("contract.artifacts_dir", "./artifacts")

	// Setup defaults
	v.SetDefault("setup.authorize_deployer", true)

	// Output defaults
	v.SetDefault("output.record_path", "./deployment-info.json")
	v.SetDefault("output.contracts_dir", "./contracts")

	// Verification defaults
	v.SetDefault("verification.api_url", "https://api.etherscan.io/v2/api")
	v.SetDefault("verification.compiler_version", "v0.8.19+commit.7dd6d404")
	v.SetDefault("verification.timeout", "30s")

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.connection_string", "./data/deployments.db")
	v.SetDefault("storage.max_connections", 5)
	v.SetDefault("storage.max_idle_time", "15m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile_path", "./data/deployer.prom")

	// Notification defaults
	v.SetDefault("notification.timeout", "10s")
	v.SetDefault("notification.retry_attempts", 3)
	v.SetDefault("notification.retry_delay", "2s")

	// Server defaults
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)
	v.SetDefault("server.enable_health", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// ResolveArtifactPath returns the compiled artifact location, derived from the
// contract name when no explicit path is configured
func (c *ContractConfig) ResolveArtifactPath() string {
	if c.ArtifactPath != "" {
		return c.ArtifactPath
	}
	return filepath.Join(c.ArtifactsDir, "contracts", c.SourceFile, c.Name+".json")
}

// DescriptorPath returns where the {address, abi} descriptor is written
func (c *Config) DescriptorPath() string {
	return filepath.Join(c.Output.ContractsDir, c.Contract.Name+".json")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Network.Name == "" {
		return fmt.Errorf("network name is required")
	}
	if c.Network.NodeURL == "" {
		return fmt.Errorf("network node URL is required")
	}
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("network chain id must be positive")
	}
	if c.Deployer.Confirmations < 1 {
		return fmt.Errorf("deployer confirmations must be at least 1")
	}
	if c.Deployer.PollInterval <= 0 {
		return fmt.Errorf("deployer poll interval must be positive")
	}
	if _, err := utils.ParseEther(c.Deployer.MinBalance); err != nil {
		return fmt.Errorf("deployer min balance: %w", err)
	}
	if c.Contract.Name == "" {
		return fmt.Errorf("contract name is required")
	}
	if _, err := utils.DecodeHexBytes(c.Contract.ConstructorArgs); err != nil {
		return fmt.Errorf("contract constructor args must be hex: %w", err)
	}
	for _, addr := range c.Setup.AdditionalVerifiers {
		if !utils.IsValidAddress(addr) {
			return fmt.Errorf("invalid verifier address %q", addr)
		}
	}
	if c.Output.RecordPath == "" {
		return fmt.Errorf("output record path is required")
	}
	if c.Storage.Enabled && c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	return nil
}
