package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/elys-network/reallocator/internal/config"
	"github.com/elys-network/reallocator/internal/datafetcher"
	"github.com/elys-network/reallocator/internal/planner"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
)

type planFlags struct {
	vault       string
	destination string
	amount      string
	source      string
}

func (f planFlags) parse() (common.Address, types.MarketID, datafetcher.SourceKind, error) {
	if !common.IsHexAddress(f.vault) {
		return common.Address{}, types.MarketID{}, "", fmt.Errorf("--vault must be a hex address, got %q", f.vault)
	}
	destination, err := types.NewMarketID(f.destination)
	if err != nil {
		return common.Address{}, types.MarketID{}, "", fmt.Errorf("--destination: %w", err)
	}
	kind, err := datafetcher.ParseSourceKind(f.source)
	if err != nil {
		return common.Address{}, types.MarketID{}, "", err
	}
	return common.HexToAddress(f.vault), destination, kind, nil
}

func bindPlanFlags(cmd *cobra.Command, f *planFlags) {
	cmd.Flags().StringVar(&f.vault, "vault", "", "vault address")
	cmd.Flags().StringVar(&f.destination, "destination", "", "destination market id")
	cmd.Flags().StringVar(&f.source, "source", string(datafetcher.SourceCached), "capacity source: cached or live")
	_ = cmd.MarkFlagRequired("vault")
	_ = cmd.MarkFlagRequired("destination")
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPlanCmd() *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Fetch vault state once, build a reallocation plan and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vaultAddress, destination, kind, err := f.parse()
			if err != nil {
				return err
			}
			amount, err := utils.ParseAmount(f.amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			fetcher, closeRPC, err := buildFetcher(cmd.Context(), kind == datafetcher.SourceLive)
			if err != nil {
				return err
			}
			defer closeRPC()

			fetched, err := fetcher.Source(cmd.Context(), vaultAddress, kind)
			if err != nil {
				return err
			}
			result, err := planner.Plan(fetched.Source, planner.PlanRequest{
				Destination: destination,
				Requested:   amount,
				Fee:         fetched.Fee,
				Allocator:   config.PublicAllocatorAddress,
			})
			if err != nil {
				return err
			}

			return writeJSON(cmd, map[string]interface{}{
				"source":       kind,
				"block_number": fetched.BlockNumber,
				"plan":         result,
			})
		},
	}
	bindPlanFlags(cmd, &f)
	cmd.Flags().StringVar(&f.amount, "amount", "", "requested amount in base units of the loan asset")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newCapacityCmd() *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Print ranked source capacity and the inflow bound of a destination market",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vaultAddress, destination, kind, err := f.parse()
			if err != nil {
				return err
			}

			fetcher, closeRPC, err := buildFetcher(cmd.Context(), kind == datafetcher.SourceLive)
			if err != nil {
				return err
			}
			defer closeRPC()

			fetched, err := fetcher.Source(cmd.Context(), vaultAddress, kind)
			if err != nil {
				return err
			}

			return writeJSON(cmd, map[string]interface{}{
				"source":         kind,
				"block_number":   fetched.BlockNumber,
				"sources":        planner.RankSources(fetched.Source, destination),
				"absorbable":     planner.MaxAbsorbable(fetched.Source, destination),
				"total_pullable": planner.TotalPullable(fetched.Source, destination),
			})
		},
	}
	bindPlanFlags(cmd, &f)
	return cmd
}
