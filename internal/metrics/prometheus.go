package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the deployer
type PrometheusMetrics struct {
	// Deployment pipeline metrics
	DeploymentsTotal       *prometheus.CounterVec
	StageDuration          *prometheus.HistogramVec
	ConfigurationStepTotal *prometheus.CounterVec
	ConfirmationPollsTotal *prometheus.CounterVec
	ObservedConfirmations  prometheus.Gauge
	DeployedBlock          prometheus.Gauge
	DeploymentGasUsed      prometheus.Gauge
	DeployerBalanceWei     prometheus.Gauge

	// Connection and error metrics
	ConnectionErrorsTotal *prometheus.CounterVec
	RPCRequestsTotal      *prometheus.CounterVec
	RPCRequestDuration    *prometheus.HistogramVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates all metrics and registers them with reg
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		DeploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_deployments_total",
				Help: "Total number of deployment runs by final state",
			},
			[]string{"network", "outcome"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deployer_stage_duration_seconds",
				Help:    "Time spent in each deployment stage",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage", "status"},
		),

		ConfigurationStepTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_configuration_steps_total",
				Help: "Post-deployment configuration steps by outcome",
			},
			[]string{"step", "status"},
		),

		ConfirmationPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_confirmation_polls_total",
				Help: "Transaction status polls by observed state",
			},
			[]string{"state"},
		),

		ObservedConfirmations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_observed_confirmations",
				Help: "Highest confirmation count observed for the tracked transaction",
			},
		),

		DeployedBlock: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_deployed_block",
				Help: "Block number containing the contract creation transaction",
			},
		),

		DeploymentGasUsed: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_deployment_gas_used",
				Help: "Gas used by the contract creation transaction",
			},
		),

		DeployerBalanceWei: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_account_balance_wei",
				Help: "Deployer balance observed at start of run",
			},
		),

		ConnectionErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_connection_errors_total",
				Help: "Total number of connection errors to nodes",
			},
			[]string{"endpoint", "error_type"},
		),

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_rpc_requests_total",
				Help: "Total number of RPC requests made to nodes",
			},
			[]string{"method", "status"},
		),

		RPCRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deployer_rpc_request_duration_seconds",
				Help:    "Duration of RPC requests to nodes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		DatabaseOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deployer_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deployer_http_requests_total",
				Help: "Total number of HTTP requests received",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deployer_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "deployer_component_health",
				Help: "Health status of application components (1=healthy, 0=unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "deployer_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// RecordDeployment records the final state of a deployment run
func (m *PrometheusMetrics) RecordDeployment(network, outcome string) {
	m.DeploymentsTotal.WithLabelValues(network, outcome).Inc()
}

// RecordStage records how long a pipeline stage took
func (m *PrometheusMetrics) RecordStage(stage, status string, duration time.Duration) {
	m.StageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordConfigurationStep records a configuration step outcome
func (m *PrometheusMetrics) RecordConfigurationStep(step, status string) {
	m.ConfigurationStepTotal.WithLabelValues(step, status).Inc()
}

// RecordConfirmationPoll records one transaction status observation
func (m *PrometheusMetrics) RecordConfirmationPoll(state string, confirmations uint64) {
	m.ConfirmationPollsTotal.WithLabelValues(state).Inc()
	m.ObservedConfirmations.Set(float64(confirmations))
}

// RecordDeployedContract records where and at which cost the contract landed
func (m *PrometheusMetrics) RecordDeployedContract(blockNumber, gasUsed uint64) {
	m.DeployedBlock.Set(float64(blockNumber))
	m.DeploymentGasUsed.Set(float64(gasUsed))
}

// UpdateDeployerBalance records the deployer balance snapshot
func (m *PrometheusMetrics) UpdateDeployerBalance(wei float64) {
	m.DeployerBalanceWei.Set(wei)
}

// RecordConnectionError records a connection error
func (m *PrometheusMetrics) RecordConnectionError(endpoint, errorType string) {
	m.ConnectionErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// RecordRPCRequest records an RPC request
func (m *PrometheusMetrics) RecordRPCRequest(method, status string, duration time.Duration) {
	m.RPCRequestsTotal.WithLabelValues(method, status).Inc()
	m.RPCRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDatabaseOperation records a database operation
func (m *PrometheusMetrics) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
