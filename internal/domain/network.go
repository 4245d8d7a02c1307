package domain

import (
	"fmt"
	"strconv"
)

// NativeCurrency describes the chain's native asset.
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals uint8  `json:"decimals" yaml:"decimals"`
}

// NetworkDescriptor is consumed by both the switch-network and the add-network flows.
type NetworkDescriptor struct {
	ChainID        uint64         `json:"chainId" yaml:"chain_id"`
	Name           string         `json:"name" yaml:"name"`
	RPCURL         string         `json:"rpcUrl" yaml:"rpc_url"`
	ExplorerURL    string         `json:"explorerUrl" yaml:"explorer_url"`
	NativeCurrency NativeCurrency `json:"nativeCurrency" yaml:"native_currency"`
}

// ChainIDHex returns the 0x-prefixed chain id used by wallet RPC methods.
func (n NetworkDescriptor) ChainIDHex() string {
	return "0x" + strconv.FormatUint(n.ChainID, 16)
}

// TxURL returns the explorer link for a transaction hash.
func (n NetworkDescriptor) TxURL(txHash string) string {
	if n.ExplorerURL == "" || txHash == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", n.ExplorerURL, txHash)
}

var ether = NativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18}

// ArbitrumSepolia is the network karma conversions are paid out on.
var ArbitrumSepolia = NetworkDescriptor{
	ChainID:        421614,
	Name:           "Arbitrum Sepolia",
	RPCURL:         "https://sepolia-rollup.arbitrum.io/rpc",
	ExplorerURL:    "https://sepolia.arbiscan.io",
	NativeCurrency: ether,
}

// EthereumMainnet is the target of the wallet's switch-to-mainnet action.
var EthereumMainnet = NetworkDescriptor{
	ChainID:        1,
	Name:           "Ethereum Mainnet",
	RPCURL:         "https://cloudflare-eth.com",
	ExplorerURL:    "https://etherscan.io",
	NativeCurrency: ether,
}

type knownNetwork struct {
	name     string
	explorer string
}

var knownNetworks = map[uint64]knownNetwork{
	1:        {"Ethereum Mainnet", "https://etherscan.io"},
	5:        {"Goerli Testnet", "https://goerli.etherscan.io"},
	11155111: {"Sepolia Testnet", "https://sepolia.etherscan.io"},
	137:      {"Polygon Mainnet", "https://polygonscan.com"},
	80001:    {"Polygon Mumbai", "https://mumbai.polygonscan.com"},
	56:       {"BSC Mainnet", "https://bscscan.com"},
	97:       {"BSC Testnet", "https://testnet.bscscan.com"},
	421614:   {"Arbitrum Sepolia", "https://sepolia.arbiscan.io"},
}

// NetworkName returns a display name for the chain id.
func NetworkName(chainID uint64) string {
	if n, ok := knownNetworks[chainID]; ok {
		return n.name
	}
	return fmt.Sprintf("Chain %d", chainID)
}

// AddressExplorerURL returns an explorer link for the address, or "" for unknown chains.
func AddressExplorerURL(addr Address, chainID uint64) string {
	n, ok := knownNetworks[chainID]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s/address/%s", n.explorer, addr)
}
