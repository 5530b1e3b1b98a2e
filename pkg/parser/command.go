package parser

import (
	"fmt"
	"regexp"
	"strings"

	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

// <amount> <token> [on <chain>] to <token> [on <chain>] [to <address>]
var transferPattern = regexp.MustCompile(
	`^(\d+\.?\d*)\s+([A-Z0-9₮\-]+)(?:\s+(?:ON|FROM)\s+([A-Z]+))?\s+TO\s+([A-Z0-9₮\-]+)(?:\s+ON\s+([A-Z]+))?(?:\s+TO\s+(0X[0-9A-F]{40}))?$`,
)

// ParseTransferCommand parses a natural language bridge command. Chains left
// out of the command fall back to defaultFrom and defaultTo.
// Examples:
//   - "bridge 100 USDC on arb to USDC on opt"
//   - "0.5 ETH from eth to ETH on bas"
//   - "25 USDC to USDC-SPOT on hpl to 0x..."
func ParseTransferCommand(command, defaultFrom, defaultTo string) (*types.TransferIntent, error) {
	normalized := strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	normalized = strings.TrimPrefix(normalized, "BRIDGE ")

	matches := transferPattern.FindStringSubmatch(normalized)
	if matches == nil {
		return nil, fmt.Errorf("invalid bridge command format. Expected: '<amount> <token> on <chain> to <token> on <chain>' (e.g., '100 USDC on arb to USDC on opt'): %w", bridgeerrors.ErrInvalidInput)
	}

	intent := &types.TransferIntent{
		Amount:    matches[1],
		FromToken: matches[2],
		ToToken:   matches[4],
		FromChain: pick(matches[3], defaultFrom),
		ToChain:   pick(matches[5], defaultTo),
	}
	if matches[6] != "" {
		intent.ToAddress = "0x" + strings.ToLower(matches[6][2:])
	}

	if intent.FromChain == "" {
		return nil, fmt.Errorf("source chain is required: %w", bridgeerrors.ErrInvalidInput)
	}
	if intent.ToChain == "" {
		return nil, fmt.Errorf("destination chain is required: %w", bridgeerrors.ErrInvalidInput)
	}
	return intent, nil
}

func pick(chain, fallback string) string {
	if chain != "" {
		return strings.ToLower(chain)
	}
	return strings.ToLower(strings.TrimSpace(fallback))
}
