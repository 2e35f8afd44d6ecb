package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
network:
  name: rsk-testnet
  node_url: http://127.0.0.1:4444
  chain_id: 31
deployer:
  confirmations: 5
  poll_interval: 2s
contract:
  name: FakeProductIdentification
  artifacts_dir: ./build
setup:
  additional_verifiers:
    - "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DEPLOYER_PRIVATE_KEY", "0xabc")
	t.Setenv("ETHERSCAN_API_KEY", "key")

	cfg, err := Load(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "rsk-testnet", cfg.Network.Name)
	assert.Equal(t, int64(31), cfg.Network.ChainID)
	assert.Equal(t, uint64(5), cfg.Deployer.Confirmations)
	assert.Equal(t, 2*time.Second, cfg.Deployer.PollInterval)
	assert.Equal(t, "0xabc", cfg.Deployer.PrivateKey)
	assert.Equal(t, "key", cfg.Verification.APIKey)

	// defaults
	assert.Equal(t, "0.1", cfg.Deployer.MinBalance)
	assert.True(t, cfg.Setup.AuthorizeDeployer)
	assert.Equal(t, "./deployment-info.json", cfg.Output.RecordPath)
	assert.Equal(t, 15*time.Minute, cfg.Deployer.ConfirmationTimeout)

	assert.Equal(t, filepath.Join("build", "contracts", "Project.sol", "FakeProductIdentification.json"),
		cfg.Contract.ResolveArtifactPath())
	assert.Equal(t, filepath.Join("contracts", "FakeProductIdentification.json"), cfg.DescriptorPath())
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing network name", func(c *Config) { c.Network.Name = "" }},
		{"zero confirmations", func(c *Config) { c.Deployer.Confirmations = 0 }},
		{"bad min balance", func(c *Config) { c.Deployer.MinBalance = "lots" }},
		{"bad constructor args", func(c *Config) { c.Contract.ConstructorArgs = "0xzz" }},
		{"bad verifier", func(c *Config) { c.Setup.AdditionalVerifiers = []string{"0x123"} }},
		{"no record path", func(c *Config) { c.Output.RecordPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, testConfigYAML))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNameMismatch(t *testing.T) {
	n := NetworkConfig{Name: "rsk-testnet", ChainID: 31}
	_, mismatch := n.NameMismatch()
	assert.False(t, mismatch)

	n = NetworkConfig{Name: "localhost", ChainID: 31}
	expected, mismatch := n.NameMismatch()
	assert.True(t, mismatch)
	assert.Equal(t, []int64{31337, 1337}, expected)

	n = NetworkConfig{Name: "my-devnet", ChainID: 999}
	_, mismatch = n.NameMismatch()
	assert.False(t, mismatch, "unknown names are never flagged")
}
