package planner

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/elys-network/reallocator/internal/calldata"
	"github.com/elys-network/reallocator/internal/logger"
	"github.com/elys-network/reallocator/internal/types"
	"github.com/elys-network/reallocator/internal/utils"
	"github.com/elys-network/reallocator/internal/vault"
)

// PlanRequest describes one reallocation into Destination.
type PlanRequest struct {
	Destination types.MarketID
	Requested   sdkmath.Int
	Fee         sdkmath.Int    // Allocator fee, passed through as the call value
	Allocator   common.Address // Allocator contract the instruction targets
}

// PlanResult is the full output of a planning run.
type PlanResult struct {
	Vault       common.Address             `json:"vault"`
	Destination types.MarketID             `json:"destination"`
	Requested   sdkmath.Int                `json:"requested"`
	Absorbable  sdkmath.Int                `json:"absorbable"`
	Clamped     bool                       `json:"clamped"`   // Requested exceeded Absorbable
	Planned     []types.PlannedWithdrawal  `json:"planned"`   // Allocator output, largest source first
	Withdrawals []types.ResolvedWithdrawal `json:"withdrawals"` // Contract order
	Total       sdkmath.Int                `json:"total"`     // Sum of Withdrawals
	Fulfilled   bool                       `json:"fulfilled"` // Total == Requested
	Instruction *calldata.Instruction      `json:"instruction,omitempty"`
}

// Plan runs the whole pipeline: clamp the request to what the destination can absorb,
// allocate across sources, resolve and order the withdrawals, and encode the call. An empty
// plan carries no instruction, since the allocator rejects an empty withdrawal list.
func Plan(src vault.CapacitySource, req PlanRequest) (*PlanResult, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if req.Destination.IsZero() {
		return nil, ErrMissingDestination
	}
	if req.Requested.IsNil() || req.Requested.IsNegative() {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidRequestedAmount, req.Requested)
	}

	planLogger := logger.GetForComponent("planner").With().
		Str("vault", src.Vault().Hex()).
		Str("destination", req.Destination.String()).
		Logger()

	absorbable := MaxAbsorbable(src, req.Destination)
	amount := utils.NewBounded(req.Requested).Min(utils.NewBounded(absorbable))
	result := &PlanResult{
		Vault:       src.Vault(),
		Destination: req.Destination,
		Requested:   req.Requested,
		Absorbable:  absorbable,
		Clamped:     req.Requested.GT(absorbable),
		Total:       sdkmath.ZeroInt(),
	}
	if result.Clamped {
		planLogger.Info().
			Str("requested", req.Requested.String()).
			Str("absorbable", absorbable.String()).
			Msg("Request exceeds destination inflow bound, clamping")
	}

	planned, err := Allocate(src, req.Destination, amount.Int())
	if err != nil {
		return nil, err
	}
	result.Planned = planned
	result.Withdrawals = Resolve(src, planned)

	total := utils.ZeroBounded()
	for _, w := range result.Withdrawals {
		total = total.Add(utils.NewBounded(w.Amount))
	}
	result.Total = total.Int()
	result.Fulfilled = result.Total.Equal(req.Requested)

	if len(result.Withdrawals) == 0 {
		planLogger.Info().Str("requested", req.Requested.String()).Msg("No withdrawals available, plan is empty")
		return result, nil
	}

	destParams, ok := src.MarketParams(req.Destination)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDestination, req.Destination)
	}
	ix, err := calldata.BuildReallocateTo(req.Allocator, src.Vault(), req.Fee, result.Withdrawals, destParams)
	if err != nil {
		return nil, fmt.Errorf("failed to build reallocation instruction: %w", err)
	}
	result.Instruction = &ix

	planLogger.Info().
		Int("withdrawals", len(result.Withdrawals)).
		Str("requested", req.Requested.String()).
		Str("total", result.Total.String()).
		Bool("fulfilled", result.Fulfilled).
		Msg("Reallocation plan built")
	return result, nil
}
