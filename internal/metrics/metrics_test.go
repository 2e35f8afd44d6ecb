package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagersAreIndependent(t *testing.T) {
	// Each manager owns its registry, so creating two must not panic on
	// duplicate registration
	a := NewManager()
	b := NewManager()

	a.GetPrometheusMetrics().RecordDeployment("rsk-testnet", "success")
	a.GetPrometheusMetrics().RecordDeployment("rsk-testnet", "success")
	b.GetPrometheusMetrics().RecordDeployment("rsk-testnet", "PERSISTENCE_ERROR")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.GetPrometheusMetrics().DeploymentsTotal.WithLabelValues("rsk-testnet", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GetPrometheusMetrics().DeploymentsTotal.WithLabelValues("rsk-testnet", "success")))
}

func TestRecorders(t *testing.T) {
	m := NewManager().GetPrometheusMetrics()

	m.RecordConfirmationPoll("mined", 2)
	m.RecordConfirmationPoll("mined", 3)
	m.RecordDeployedContract(4242, 1_234_567)
	m.RecordConfigurationStep("authorize deployer as verifier", "failed")
	m.UpdateComponentHealth("storage", false)
	m.RecordStage("confirm", "success", 90*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConfirmationPollsTotal.WithLabelValues("mined")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ObservedConfirmations))
	assert.Equal(t, 4242.0, testutil.ToFloat64(m.DeployedBlock))
	assert.Equal(t, 1_234_567.0, testutil.ToFloat64(m.DeploymentGasUsed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigurationStepTotal.WithLabelValues("authorize deployer as verifier", "failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ComponentHealth.WithLabelValues("storage")))
}

func TestWriteTextfile(t *testing.T) {
	mm := NewManager()
	mm.GetPrometheusMetrics().RecordDeployment("rsk-testnet", "success")

	path := filepath.Join(t.TempDir(), "textfile", "deployer.prom")
	require.NoError(t, mm.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `deployer_deployments_total{network="rsk-testnet",outcome="success"} 1`)
	assert.Contains(t, string(data), "deployer_goroutines")
}
