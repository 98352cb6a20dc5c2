package chain

import (
	"fmt"
	"sort"
	"strings"
)

// Network holds the deployed contract addresses for one chain.
type Network struct {
	ChainID       uint64
	Name          string
	TokenAddress  string
	AgencyAddress string
}

var knownNetworks = map[uint64]Network{
	1:        {ChainID: 1, Name: "mainnet"},
	11155111: {ChainID: 11155111, Name: "sepolia"},
	56:       {ChainID: 56, Name: "bsc"},
	97: {
		ChainID:       97,
		Name:          "bscTestnet",
		TokenAddress:  "0xd9145CCE52D386f254917e481eB44e9943F39138",
		AgencyAddress: "0xd8b934580fcE35a11B58C6D73aDeE468a2833fa8",
	},
}

// LookupNetwork returns the network for chainID with any non-empty override
// addresses applied. Both contract addresses must be known afterwards.
func LookupNetwork(chainID uint64, tokenOverride string, agencyOverride string) (Network, error) {
	network, found := knownNetworks[chainID]
	if !found {
		return Network{}, fmt.Errorf("chain %d not supported. Supported chains are: %s", chainID, supportedChainIDs())
	}
	if strings.TrimSpace(tokenOverride) != "" {
		network.TokenAddress = strings.TrimSpace(tokenOverride)
	}
	if strings.TrimSpace(agencyOverride) != "" {
		network.AgencyAddress = strings.TrimSpace(agencyOverride)
	}
	if network.TokenAddress == "" || network.AgencyAddress == "" {
		return Network{}, fmt.Errorf("contract addresses are not configured for chain %s (%d)", network.Name, chainID)
	}
	return network, nil
}

func supportedChainIDs() string {
	ids := make([]int, 0, len(knownNetworks))
	for chainID := range knownNetworks {
		ids = append(ids, int(chainID))
	}
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for _, chainID := range ids {
		parts = append(parts, fmt.Sprintf("%d", chainID))
	}
	return strings.Join(parts, ", ")
}
