package route

import (
	"strings"

	"phorus/pkg/chains"
	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

// SelectRoute picks one candidate. For multi-step destinations the first route
// reaching the destination wins, then the first route starting on fromChainID,
// then the first candidate. Candidates without steps are ignored.
func SelectRoute(candidates []types.Route, fromChainID uint64, destination chains.Chain) (*types.Route, error) {
	usable := make([]types.Route, 0, len(candidates))
	for _, candidate := range candidates {
		if len(candidate.Steps) > 0 {
			usable = append(usable, candidate)
		}
	}
	if len(usable) == 0 {
		return nil, bridgeerrors.ErrNoRoute
	}

	if destination.MultiStep {
		for i := range usable {
			if reachesDestination(usable[i], destination) {
				return &usable[i], nil
			}
		}
	}

	for i := range usable {
		if usable[i].Steps[0].Action.FromChainID == fromChainID {
			return &usable[i], nil
		}
	}

	return &usable[0], nil
}

func reachesDestination(route types.Route, destination chains.Chain) bool {
	for _, step := range route.Steps {
		if stepTargets(step, destination) {
			return true
		}
	}
	final := route.FinalStep()
	return final != nil && final.Action.ToChainID == destination.ID
}

func stepTargets(step types.Step, destination chains.Chain) bool {
	for _, tool := range step.Tools() {
		for _, want := range destination.RoutingTools {
			if strings.EqualFold(tool, want) {
				return true
			}
		}
	}
	if destination.SettlementChainID != 0 && step.Action.ToChainID == destination.SettlementChainID {
		return true
	}
	for _, included := range step.IncludedSteps {
		if stepTargets(included, destination) {
			return true
		}
	}
	return false
}
