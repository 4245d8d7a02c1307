package provider

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/karmabridge/internal/domain"
)

// Client wraps a Provider with typed wallet calls.
type Client struct {
	p Provider
}

// NewClient creates a typed client for p.
func NewClient(p Provider) *Client {
	return &Client{p: p}
}

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider { return c.p }

// RequestAccounts prompts the user to authorize accounts. It may block until the user answers.
func (c *Client) RequestAccounts(ctx context.Context) ([]domain.Address, error) {
	return c.accounts(ctx, MethodRequestAccounts)
}

// Accounts returns the already authorized accounts without prompting.
func (c *Client) Accounts(ctx context.Context) ([]domain.Address, error) {
	return c.accounts(ctx, MethodAccounts)
}

func (c *Client) accounts(ctx context.Context, method string) ([]domain.Address, error) {
	raw, err := c.p.Request(ctx, method)
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrapf(err, "decode %s result", method)
	}
	out := make([]domain.Address, 0, len(list))
	for _, a := range list {
		out = append(out, domain.NewAddress(a))
	}
	return out, nil
}

// ChainID returns the wallet's active chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	raw, err := c.p.Request(ctx, MethodChainID)
	if err != nil {
		return nil, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return nil, errors.Wrap(err, "decode eth_chainId result")
	}
	id, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, errors.Wrapf(err, "decode chain id %q", hex)
	}
	return id, nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

// SwitchChain asks the wallet to make chainID active.
func (c *Client) SwitchChain(ctx context.Context, chainID uint64) error {
	_, err := c.p.Request(ctx, MethodSwitchChain, switchChainParams{ChainID: hexutil.EncodeUint64(chainID)})
	return err
}

type addChainParams struct {
	ChainID           string                `json:"chainId"`
	ChainName         string                `json:"chainName"`
	RPCURLs           []string              `json:"rpcUrls"`
	BlockExplorerURLs []string              `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    domain.NativeCurrency `json:"nativeCurrency"`
}

// AddChain registers the network with the wallet.
func (c *Client) AddChain(ctx context.Context, n domain.NetworkDescriptor) error {
	params := addChainParams{
		ChainID:        n.ChainIDHex(),
		ChainName:      n.Name,
		RPCURLs:        []string{n.RPCURL},
		NativeCurrency: n.NativeCurrency,
	}
	if n.ExplorerURL != "" {
		params.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	_, err := c.p.Request(ctx, MethodAddChain, params)
	return err
}

// BalanceAt returns the wei balance of account at block (nil means latest).
func (c *Client) BalanceAt(ctx context.Context, account common.Address, block *big.Int) (*big.Int, error) {
	tag := "latest"
	if block != nil {
		tag = hexutil.EncodeBig(block)
	}
	raw, err := c.p.Request(ctx, MethodGetBalance, account.Hex(), tag)
	if err != nil {
		return nil, err
	}
	var hex string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return nil, errors.Wrap(err, "decode eth_getBalance result")
	}
	wei, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, errors.Wrapf(err, "decode balance %q", hex)
	}
	return wei, nil
}
