package route

import (
	"math/big"

	"github.com/google/uuid"

	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

// Normalize turns a resolved provider step into a Quote. Steps carrying neither a
// transaction request nor a typed-data message cannot be executed.
func Normalize(step types.Step, strategy types.Strategy) (*types.Quote, error) {
	quote := &types.Quote{
		ID:        uuid.NewString(),
		Tool:      step.Tool,
		Strategy:  strategy,
		StepCount: 1,
		Action:    step.Action,
		Estimate:  step.Estimate,
	}
	if quote.Tool == "" {
		quote.Tool = step.Estimate.Tool
	}

	switch {
	case step.TransactionRequest != nil && step.TransactionRequest.To != "":
		request := *step.TransactionRequest
		if request.ChainID == 0 {
			request.ChainID = step.Action.FromChainID
		}
		quote.Payload = types.TransactionPayload{Request: request}
	case step.Message != nil:
		chainID := step.Action.FromChainID
		if step.Message.Domain.ChainId != nil {
			chainID = (*big.Int)(step.Message.Domain.ChainId).Uint64()
		}
		quote.Payload = types.MessagePayload{
			TypedData: *step.Message,
			Step:      step,
			Chain:     chainID,
		}
	default:
		return nil, bridgeerrors.Newf(bridgeerrors.ErrMissingTransactionData, "step %s from %s", step.ID, step.Tool)
	}

	return quote, nil
}
