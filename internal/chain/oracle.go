package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ERC20 ABI: the oracle only reads balances.
const balanceOfABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Check is the outcome of a sufficiency query. When the RPC call
// fails, Unavailable is set and Sufficient stays false: a degraded
// oracle fails closed rather than letting settlement proceed blind.
type Check struct {
	Sufficient  bool
	Balance     *big.Int // nil when Unavailable
	Unavailable bool
	Detail      string
}

// Oracle answers read-only balance sufficiency questions against one
// asset contract. It never mutates chain state.
type Oracle struct {
	client Client
	asset  common.Address
	abi    abi.ABI
}

// NewOracle creates a balance oracle for the given asset contract.
func NewOracle(client Client, assetAddress string) (*Oracle, error) {
	parsed, err := abi.JSON(strings.NewReader(balanceOfABI))
	if err != nil {
		return nil, fmt.Errorf("chain: parse balanceOf ABI: %w", err)
	}
	return &Oracle{
		client: client,
		asset:  common.HexToAddress(assetAddress),
		abi:    parsed,
	}, nil
}

// Sufficient reports whether account holds at least required units of
// the asset.
func (o *Oracle) Sufficient(ctx context.Context, account string, required *big.Int) Check {
	if !common.IsHexAddress(account) {
		return Check{Unavailable: false, Detail: fmt.Sprintf("account %q is not a valid address", account)}
	}

	data, err := o.abi.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return Check{Unavailable: true, Detail: fmt.Sprintf("pack balanceOf: %v", err)}
	}

	result, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.asset,
		Data: data,
	}, nil)
	if err != nil {
		return Check{Unavailable: true, Detail: fmt.Sprintf("balanceOf call failed: %v", err)}
	}
	if len(result) != 32 {
		return Check{Unavailable: true, Detail: fmt.Sprintf("balanceOf returned %d bytes, want 32", len(result))}
	}

	balance := new(big.Int).SetBytes(result)
	if balance.Cmp(required) < 0 {
		return Check{
			Balance: balance,
			Detail:  fmt.Sprintf("balance %s below required %s", balance, required),
		}
	}
	return Check{Sufficient: true, Balance: balance}
}
