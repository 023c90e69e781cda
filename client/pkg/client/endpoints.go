package client

import (
	"fmt"
	"strconv"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rakurai-io/rakurai/programs/pkg/safemath"
)

// NormalizeURL expands a cluster moniker to its public RPC endpoint. Any
// other value is returned unchanged.
func NormalizeURL(urlOrMoniker string) string {
	switch urlOrMoniker {
	case "m", "mainnet-beta":
		return solanarpc.MainNetBeta_RPC
	case "t", "testnet":
		return solanarpc.TestNet_RPC
	case "d", "devnet":
		return solanarpc.DevNet_RPC
	case "l", "localhost":
		return solanarpc.LocalNet_RPC
	default:
		return urlOrMoniker
	}
}

// ParseCommissionBps parses a commission in basis points between 0 and 10000.
func ParseCommissionBps(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("commission must be a valid positive integer: %q", s)
	}
	if v > safemath.MaxBps {
		return 0, fmt.Errorf("commission must be between 0 and %d (0%% to 100%%)", safemath.MaxBps)
	}
	return uint16(v), nil
}
