// Package verification submits contract sources to an Etherscan-compatible explorer.
package verification

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// Request identifies what to verify. Network and ChainID are explicit so the
// trigger never depends on ambient state.
type Request struct {
	Network         string
	ChainID         int64
	Address         common.Address
	ContractName    string
	SourceName      string // e.g. contracts/Project.sol
	ConstructorArgs []byte
}

// Receipt is the explorer's acknowledgement of a verification request
type Receipt struct {
	GUID    string `json:"guid"`
	Message string `json:"message"`
}

// Verifier requests source verification
type Verifier interface {
	Verify(ctx context.Context, req Request) (*Receipt, error)
}

// EtherscanVerifier talks to the Etherscan v2 multichain API or a compatible explorer
type EtherscanVerifier struct {
	config     config.VerificationConfig
	httpClient *http.Client
	logger     *logrus.Logger
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// NewEtherscanVerifier creates a new verifier
func NewEtherscanVerifier(cfg config.VerificationConfig) *EtherscanVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EtherscanVerifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    2,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: utils.GetLogger(),
	}
}

// Enabled reports whether an API key is configured
func (v *EtherscanVerifier) Enabled() bool {
	return strings.TrimSpace(v.config.APIKey) != ""
}

// Verify submits a single verification request. It is never retried.
func (v *EtherscanVerifier) Verify(ctx context.Context, req Request) (*Receipt, error) {
	if !v.Enabled() {
		return nil, utils.NewAppError(utils.ErrCodeVerificationFailed, "Verification credential not configured")
	}
	if v.config.SourcePath == "" {
		return nil, utils.NewAppError(utils.ErrCodeVerificationFailed, "Verification source not configured",
			"set verification.source_path to a flattened source or standard JSON input")
	}

	source, err := os.ReadFile(v.config.SourcePath)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeVerificationFailed, "Failed to read contract source", err)
	}

	form := url.Values{}
	form.Set("apikey", v.config.APIKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("contractaddress", req.Address.Hex())
	form.Set("sourceCode", string(source))
	form.Set("compilerversion", v.config.CompilerVersion)
	// Etherscan's parameter name is misspelled
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))

	if strings.HasSuffix(strings.ToLower(v.config.SourcePath), ".json") {
		form.Set("codeformat", "solidity-standard-json-input")
		form.Set("contractname", qualifiedName(req))
	} else {
		form.Set("codeformat", "solidity-single-file")
		form.Set("contractname", req.ContractName)
	}

	endpoint, err := url.Parse(v.config.APIURL)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeVerificationFailed, "Invalid verification API URL", err)
	}
	query := endpoint.Query()
	query.Set("chainid", strconv.FormatInt(req.ChainID, 10))
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeVerificationFailed, "Failed to create verification request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("User-Agent", "rsk-contract-deployer/1.0")

	start := time.Now()
	resp, err := v.httpClient.Do(httpReq)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeVerificationFailed, "Failed to send verification request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeVerificationFailed, "Failed to read verification response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, utils.NewAppError(utils.ErrCodeVerificationFailed, "Verification API returned an error status",
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, utils.WrapError(utils.ErrCodeVerificationFailed, "Failed to decode verification response", err)
	}
	if parsed.Status != "1" {
		return nil, utils.NewAppError(utils.ErrCodeVerificationFailed, "Verification request rejected",
			fmt.Sprintf("%s: %s", parsed.Message, parsed.Result))
	}

	v.logger.WithFields(logrus.Fields{
		"network":          req.Network,
		"chain_id":         req.ChainID,
		"contract_address": req.Address.Hex(),
		"guid":             parsed.Result,
		"duration":         time.Since(start),
	}).Info("Verification request accepted")

	return &Receipt{GUID: parsed.Result, Message: parsed.Message}, nil
}

func qualifiedName(req Request) string {
	if req.SourceName == "" {
		return req.ContractName
	}
	return req.SourceName + ":" + req.ContractName
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
