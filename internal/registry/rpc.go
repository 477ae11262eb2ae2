package registry

import (
	"fmt"
	"strings"
)

// ENS names are resolved against Ethereum mainnet regardless of the active chain.
const ENSChainID int64 = 1

var auxiliaryRPCByChainID = map[int64]string{
	1: "https://eth.llamarpc.com",
}

// DefaultRPCURL returns the built-in endpoint for a chain, including chains
// outside the network table that are only used for lookups.
func DefaultRPCURL(chainID int64) (string, bool) {
	if network, ok := Default().Lookup(chainID); ok && network.RPCURL != "" {
		return network.RPCURL, true
	}
	v, ok := auxiliaryRPCByChainID[chainID]
	return v, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if v, ok := DefaultRPCURL(chainID); ok {
		return v, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; set networks.%d.rpc in config", chainID, chainID)
}
