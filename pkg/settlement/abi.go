// Package settlement defines the ABI of the settlement contract and of the
// currency token, together with the EIP-712 typed data a trader signs to
// authorize a trade.
package settlement

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const settlementABIJSON = `[
	{"type":"function","name":"nextNonce","stateMutability":"view",
		"inputs":[{"name":"signer","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"usedNonce","stateMutability":"view",
		"inputs":[{"name":"signer","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getReserves","stateMutability":"view",
		"inputs":[{"name":"assetId","type":"uint256"}],
		"outputs":[{"name":"currencyReserve","type":"uint256"},{"name":"assetReserve","type":"uint256"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"buyWithAuthorization","stateMutability":"nonpayable",
		"inputs":[
			{"name":"trader","type":"address"},
			{"name":"assetId","type":"uint256"},
			{"name":"amount","type":"uint256"},
			{"name":"maxCurrencyIn","type":"uint256"},
			{"name":"deadline","type":"uint256"},
			{"name":"nonce","type":"uint256"},
			{"name":"signature","type":"bytes"}],
		"outputs":[]},
	{"type":"function","name":"sellWithAuthorization","stateMutability":"nonpayable",
		"inputs":[
			{"name":"trader","type":"address"},
			{"name":"assetId","type":"uint256"},
			{"name":"amount","type":"uint256"},
			{"name":"minCurrencyOut","type":"uint256"},
			{"name":"deadline","type":"uint256"},
			{"name":"nonce","type":"uint256"},
			{"name":"signature","type":"bytes"}],
		"outputs":[]}
]`

const erc20ABIJSON = `[
	{"type":"function","name":"allowance","stateMutability":"view",
		"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
		"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
		"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
		"inputs":[{"name":"account","type":"address"}],
		"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	settlementABI = mustParseABI(settlementABIJSON)
	erc20ABI      = mustParseABI(erc20ABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("settlement: invalid abi: %s", err))
	}
	return parsed
}

// PackNextNonce encodes a call to the next nonce accessor.
func PackNextNonce(signer common.Address) ([]byte, error) {
	return settlementABI.Pack("nextNonce", signer)
}

// PackUsedNonce encodes a call to the highest used nonce accessor.
func PackUsedNonce(signer common.Address) ([]byte, error) {
	return settlementABI.Pack("usedNonce", signer)
}

// UnpackNonce decodes the result of any of the nonce accessors.
func UnpackNonce(method string, data []byte) (uint64, error) {
	n, err := unpackUint(settlementABI, method, data)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("nonce %s overflows uint64", n)
	}
	return n.Uint64(), nil
}

// PackGetReserves encodes a call to read the reserves of the pool of the
// given asset.
func PackGetReserves(assetID uint64) ([]byte, error) {
	return settlementABI.Pack("getReserves", new(big.Int).SetUint64(assetID))
}

// UnpackReserves decodes the currency and asset reserves.
func UnpackReserves(data []byte) (*big.Int, *big.Int, error) {
	out, err := settlementABI.Unpack("getReserves", data)
	if err != nil {
		return nil, nil, err
	}
	if len(out) != 2 {
		return nil, nil, fmt.Errorf("expected 2 return values, got %d", len(out))
	}
	currency, ok := out[0].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected currency reserve type %T", out[0])
	}
	asset, ok := out[1].(*big.Int)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected asset reserve type %T", out[1])
	}
	return currency, asset, nil
}

// PackAssetBalance encodes a call to read the asset balance of an account.
func PackAssetBalance(account common.Address, assetID uint64) ([]byte, error) {
	return settlementABI.Pack(
		"balanceOf", account, new(big.Int).SetUint64(assetID),
	)
}

// UnpackAssetBalance ...
func UnpackAssetBalance(data []byte) (*big.Int, error) {
	return unpackUint(settlementABI, "balanceOf", data)
}

// PackTrade encodes the authorized trade call for the given authorization.
func PackTrade(auth Authorization, signature []byte) ([]byte, error) {
	method := "sellWithAuthorization"
	if auth.IsBuy {
		method = "buyWithAuthorization"
	}
	return settlementABI.Pack(
		method,
		auth.Trader,
		new(big.Int).SetUint64(auth.AssetID),
		auth.Amount,
		auth.Bound,
		big.NewInt(auth.Deadline),
		new(big.Int).SetUint64(auth.Nonce),
		signature,
	)
}

// PackAllowance encodes a call to the currency token allowance.
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

// UnpackAllowance ...
func UnpackAllowance(data []byte) (*big.Int, error) {
	return unpackUint(erc20ABI, "allowance", data)
}

// PackApprove encodes the approval of the given amount of currency to the
// spender.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// PackCurrencyBalance encodes a call to the currency token balance.
func PackCurrencyBalance(account common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", account)
}

// UnpackCurrencyBalance ...
func UnpackCurrencyBalance(data []byte) (*big.Int, error) {
	return unpackUint(erc20ABI, "balanceOf", data)
}

// UnpackRevertReason decodes the Error(string) payload of a reverted call.
func UnpackRevertReason(data []byte) string {
	if len(data) <= 0 {
		return ""
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return ""
	}
	return reason
}

func unpackUint(contractABI abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := contractABI.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("expected 1 return value, got %d", len(out))
	}
	n, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected return type %T", out[0])
	}
	return n, nil
}
