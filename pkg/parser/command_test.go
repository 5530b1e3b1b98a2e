package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	bridgeerrors "phorus/pkg/errors"
	"phorus/pkg/types"
)

func TestParseTransferCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    types.TransferIntent
	}{
		{
			name:    "explicit chains",
			command: "bridge 100 USDC on arb to USDC on opt",
			want:    types.TransferIntent{Amount: "100", FromToken: "USDC", ToToken: "USDC", FromChain: "arb", ToChain: "opt"},
		},
		{
			name:    "from keyword and decimals",
			command: "0.5 eth from eth to eth on bas",
			want:    types.TransferIntent{Amount: "0.5", FromToken: "ETH", ToToken: "ETH", FromChain: "eth", ToChain: "bas"},
		},
		{
			name:    "defaults fill missing chains",
			command: "25 USDC to USDC-SPOT",
			want:    types.TransferIntent{Amount: "25", FromToken: "USDC", ToToken: "USDC-SPOT", FromChain: "arb", ToChain: "hpl"},
		},
		{
			name:    "recipient",
			command: "  10   usdc on arb to usdc on hpl to 0xAbCDEF0123456789abcdef0123456789ABCDEF01 ",
			want: types.TransferIntent{
				Amount: "10", FromToken: "USDC", ToToken: "USDC", FromChain: "arb", ToChain: "hpl",
				ToAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
			},
		},
		{
			name:    "unicode symbol",
			command: "5 USD₮0 on hye to USDC on arb",
			want:    types.TransferIntent{Amount: "5", FromToken: "USD₮0", ToToken: "USDC", FromChain: "hye", ToChain: "arb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTransferCommand(tt.command, "arb", "hpl")
			require.NoError(t, err)
			require.Equal(t, tt.want, *got)
		})
	}
}

func TestParseTransferCommandErrors(t *testing.T) {
	for _, command := range []string{
		"",
		"USDC to ETH",
		"1 USDC",
		"1 USDC on arb to",
		"1 USDC to USDC to 0x1234",
	} {
		_, err := ParseTransferCommand(command, "arb", "opt")
		require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput, command)
	}

	_, err := ParseTransferCommand("1 USDC to USDC on opt", "", "")
	require.ErrorIs(t, err, bridgeerrors.ErrInvalidInput)
}
