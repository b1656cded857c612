package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/banana-dao/banana-vaults/internal/config"
	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
)

// main is the entry point for the vault node.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bvault",
		Short: "Pooled-custody vault node",
		Long: "bvault runs a single vault on a local store. Commands other than serve open the same store, " +
			"so stop the server before running them.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}
			if err := config.LoadConfig(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return logger.Initialize(config.LogLevel, config.LogFile)
		},
	}

	root.AddCommand(
		newServeCmd(),
		newInitCmd(),
		newInfoCmd(),
		newNAVCmd(),
		newAccountCmd(),
		newFundCmd(),
		newPoolCmd(),
	)
	return root
}

func newInitCmd() *cobra.Command {
	var vaultFile string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Instantiate the vault from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadVaultFile(vaultFile)
			if err != nil {
				return err
			}
			a, err := buildApp(&cfg)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := a.service.Instantiate(cfg.Owner, cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
	cmd.Flags().StringVar(&vaultFile, "config", "vault.yaml", "vault instantiate file (yaml, json or toml)")
	return cmd
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print vault config, status and share supply",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			info, err := a.service.VaultInfo()
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func newNAVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "nav",
		Short: "Value the vault at current prices",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			nav, err := a.service.NAV()
			if err != nil {
				return err
			}
			return printJSON(cmd, nav)
		},
	}
}

func newAccountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account [address]",
		Short: "Print the shares and redeemable value of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			shares, err := a.service.AccountShares(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, shares)
		},
	}
}

func newFundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund [address] [coins]",
		Short: "Mint coins to an account in local custody, e.g. fund alice 1000000uusdc",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coins, err := sdk.ParseCoinsNormalized(args[1])
			if err != nil {
				return err
			}
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.node.Execute(func(ctx sdk.Context) error {
				return a.bank.MintCoins(ctx, args[0], coins)
			}); err != nil {
				return err
			}
			log.Info().Str("address", args[0]).Str("coins", coins.String()).Msg("Account funded")
			return nil
		},
	}
}

func newPoolCmd() *cobra.Command {
	pool := &cobra.Command{
		Use:   "pool",
		Short: "Manage local AMM pools",
	}

	var feeBps uint32
	create := &cobra.Command{
		Use:   "create [creator] [coinA] [coinB]",
		Short: "Create a constant-product pool seeded by creator",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			coinA, err := sdk.ParseCoinNormalized(args[1])
			if err != nil {
				return err
			}
			coinB, err := sdk.ParseCoinNormalized(args[2])
			if err != nil {
				return err
			}
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			var created types.Pool
			if err := a.node.Execute(func(ctx sdk.Context) error {
				created, err = a.amm.CreatePool(ctx, args[0], coinA, coinB, feeBps)
				return err
			}); err != nil {
				return err
			}
			return printJSON(cmd, created)
		},
	}
	create.Flags().Uint32Var(&feeBps, "fee-bps", 30, "swap fee in basis points")

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pool id %q: %w", args[0], err)
			}
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			var p types.Pool
			if err := a.node.Query(func(ctx sdk.Context) error {
				p, err = a.amm.Pool(ctx, types.PoolID(id))
				return err
			}); err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}

	quote := &cobra.Command{
		Use:   "quote [id] [coin] [denom-out]",
		Short: "Quote a swap against a pool without executing it, e.g. quote 1 1000uusdc uatom",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid pool id %q: %w", args[0], err)
			}
			tokenIn, err := sdk.ParseCoinNormalized(args[1])
			if err != nil {
				return err
			}
			a, err := buildApp(nil)
			if err != nil {
				return err
			}
			defer a.close()

			var est types.SwapEstimation
			if err := a.node.Query(func(ctx sdk.Context) error {
				est, err = a.amm.SimulateSwap(ctx, types.PoolID(id), tokenIn, args[2])
				return err
			}); err != nil {
				return err
			}
			return printJSON(cmd, est)
		},
	}

	pool.AddCommand(create, show, quote)
	return pool
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
