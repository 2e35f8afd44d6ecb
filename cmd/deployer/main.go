// File: cmd/deployer/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/internal/orchestrator"
	"github.com/smartdevs17/rsk-contract-deployer/internal/record"
	"github.com/smartdevs17/rsk-contract-deployer/internal/server"
	"github.com/smartdevs17/rsk-contract-deployer/internal/verification"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// errDeploymentFailed is returned after the failure has already been reported
var errDeploymentFailed = errors.New("deployment failed")

// loadConfig loads and validates the configuration, applying command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("network") {
		cfg.Network.Name, _ = flags.GetString("network")
	}
	if flags.Changed("node-url") {
		cfg.Network.NodeURL, _ = flags.GetString("node-url")
	}
	if flags.Changed("chain-id") {
		cfg.Network.ChainID, _ = flags.GetInt64("chain-id")
	}
	if flags.Changed("confirmations") {
		cfg.Deployer.Confirmations, _ = flags.GetUint64("confirmations")
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool("debug") {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// CLI Commands

var rootCmd = &cobra.Command{
	Use:           "rsk-deployer",
	Short:         "Smart contract deployment orchestrator for Rootstock (RSK)",
	Long:          `Deploys a compiled contract, waits for confirmations, applies its initial configuration and records the result for frontends.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the configured contract",
	RunE:  runDeploy,
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Stop()

	ctx, stop := signalContext()
	defer stop()

	if err := app.loadArtifact(); err != nil {
		return err
	}
	if err := app.initializeSigner(); err != nil {
		return err
	}
	if err := app.initializeConnection(ctx); err != nil {
		return err
	}
	app.initializeStorage()

	skipVerify, _ := cmd.Flags().GetBool("skip-verify")
	orch, err := app.orchestrator(skipVerify)
	if err != nil {
		return err
	}

	fmt.Println("🚀 Starting deployment of", cfg.Contract.Name, "to", cfg.Network.Name)
	res := orch.Run(ctx)
	app.exportMetrics()
	app.notify(res)
	printResult(cfg, res)

	if res.ExitCode != 0 {
		return errDeploymentFailed
	}
	return nil
}

func printResult(cfg *config.Config, res *orchestrator.Result) {
	if res.Account != nil {
		fmt.Printf("📝 Deploying with account: %s\n", res.Account.Address.Hex())
		fmt.Printf("💰 Account balance: %s\n", formatBalance(res.Account.Balance))
	}
	if res.Pending != nil {
		fmt.Printf("🔗 Transaction hash: %s\n", res.Pending.Hash.Hex())
	}
	for _, step := range res.Steps {
		if step.Succeeded() {
			fmt.Printf("✅ %s\n", step.Name)
		} else {
			fmt.Printf("⚠️  %s failed: %s\n", step.Name, step.Reason)
		}
	}

	if res.State == orchestrator.StateFailed {
		fmt.Printf("\n❌ Deployment failed (%s): %v\n", res.FailedKind, res.Err)
		if res.Pending != nil && res.Record == nil {
			fmt.Printf("The transaction %s may be on chain; check it on the explorer before retrying.\n", res.Pending.Hash.Hex())
		}
		return
	}

	rec := res.Record
	fmt.Println("\n📋 Deployment Summary:")
	fmt.Println("====================")
	fmt.Println("Contract Address:", rec.ContractAddress)
	fmt.Println("Deployer Address:", rec.DeployerAddress)
	fmt.Println("Network:", rec.Network)
	fmt.Println("Gas Used:", rec.GasUsed)
	fmt.Println("Transaction Hash:", rec.TransactionHash)
	if res.Output != nil {
		fmt.Println("Record:", res.Output.RecordPath)
		if res.Output.DescriptorWritten {
			fmt.Println("Contract descriptor:", res.Output.DescriptorPath)
		}
	}
	for _, warning := range res.Warnings {
		fmt.Printf("⚠️  %v\n", warning)
	}

	fmt.Println("\n🎉 Deployment completed successfully!")
	fmt.Println("\n📝 Next steps:")
	fmt.Println("1. Verify the contract on the block explorer (if on testnet/mainnet)")
	fmt.Println("2. Update the frontend configuration with the contract address")
	fmt.Println("3. Test the contract functionality")
	fmt.Println("4. Register manufacturers and start adding products")

	if res.Receipt == nil {
		fmt.Println("\n🔍 To verify on the explorer, run:")
		fmt.Printf("rsk-deployer verify %s --network %s\n", rec.ContractAddress, cfg.Network.Name)
	} else {
		fmt.Printf("\n🔍 Verification submitted (guid %s)\n", res.Receipt.GUID)
	}
}

var verifyCmd = &cobra.Command{
	Use:   "verify <address>",
	Short: "Submit the contract source for verification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if !utils.IsValidAddress(args[0]) {
			return fmt.Errorf("invalid contract address %q", args[0])
		}
		app, err := NewApplication(cfg)
		if err != nil {
			return err
		}
		if err := app.loadArtifact(); err != nil {
			return err
		}

		verifier, err := newVerifier(cfg.Verification)
		if err != nil {
			return err
		}
		constructorArgs, err := utils.DecodeHexBytes(cfg.Contract.ConstructorArgs)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		receipt, err := verifier.Verify(ctx, verification.Request{
			Network:         cfg.Network.Name,
			ChainID:         cfg.Network.ChainID,
			Address:         common.HexToAddress(args[0]),
			ContractName:    cfg.Contract.Name,
			SourceName:      app.artifact.SourceName,
			ConstructorArgs: constructorArgs,
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Verification submitted: %s (guid %s)\n", receipt.Message, receipt.GUID)
		return nil
	},
}

// newVerifier returns the explorer verifier, or an error naming the missing setting
func newVerifier(cfg config.VerificationConfig) (*verification.EtherscanVerifier, error) {
	verifier := verification.NewEtherscanVerifier(cfg)
	if !verifier.Enabled() {
		return nil, fmt.Errorf("verification is not configured: set verification.api_key")
	}
	return verifier, nil
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Deployment record commands",
}

var showRecordCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current deployment record",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		rec, err := record.ReadRecord(cfg.Output.RecordPath)
		if err != nil {
			return fmt.Errorf("failed to read deployment record: %w", err)
		}
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previous deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := NewApplication(cfg)
		if err != nil {
			return err
		}
		store, err := app.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		filter := models.DeploymentFilter{Limit: limit}
		if cmd.Flags().Changed("network") {
			filter.Network = &cfg.Network.Name
		}

		entries, err := store.ListDeployments(cmd.Context(), filter)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DATE\tNETWORK\tCONTRACT\tADDRESS\tBLOCK\tFAILED STEPS\tTX")
		for _, e := range entries {
			block := "-"
			if e.BlockNumber != nil {
				block = fmt.Sprint(*e.BlockNumber)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				e.DeploymentDate, e.Network, e.ContractName, e.ContractAddress, block, e.FailedSteps, e.TransactionHash)
		}
		return w.Flush()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deployment record and history over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := NewApplication(cfg)
		if err != nil {
			return err
		}
		app.initializeStorage()
		defer app.Stop()

		srv := server.NewHTTPServer(&cfg.Server, app.recordPaths(), app.storage, app.metrics)
		if err := srv.Start(); err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		<-ctx.Done()
		fmt.Println("\nReceived shutdown signal, stopping server...")
		return srv.Stop(context.Background())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("RSK Contract Deployer %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Network: %s (chain %d)\n", cfg.Network.Name, cfg.Network.ChainID)
		fmt.Printf("Node: %s\n", cfg.Network.NodeURL)
		fmt.Printf("Contract: %s\n", cfg.Contract.Name)
		fmt.Printf("Artifact: %s\n", cfg.Contract.ResolveArtifactPath())
		fmt.Printf("Confirmations: %d\n", cfg.Deployer.Confirmations)
		fmt.Printf("Signing key: %t\n", cfg.Deployer.PrivateKey != "")
		fmt.Printf("History: %t (%s)\n", cfg.Storage.Enabled, cfg.Storage.Type)
		if _, mismatch := cfg.Network.NameMismatch(); mismatch {
			fmt.Printf("Warning: network name %q is usually a different chain\n", cfg.Network.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")
	rootCmd.PersistentFlags().String("network", "", "network name written into the record")
	rootCmd.PersistentFlags().String("node-url", "", "RPC endpoint")
	rootCmd.PersistentFlags().Int64("chain-id", 0, "expected chain id")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	deployCmd.Flags().Uint64("confirmations", 0, "confirmation depth to wait for")
	deployCmd.Flags().Bool("skip-verify", false, "do not submit the source for verification")
	historyCmd.Flags().Int("limit", 20, "number of deployments to list")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	recordCmd.AddCommand(showRecordCmd)
	configCmd.AddCommand(validateConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errDeploymentFailed) {
			os.Exit(1)
		}
		log.Fatal(err)
	}
}
