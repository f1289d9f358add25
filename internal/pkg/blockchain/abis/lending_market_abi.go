package abis

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// GetLendingMarketABI returns the ABI for single-base-asset lending markets that keep a
// per-collateral AssetInfo record (Comet layout). The record embeds the price feed
// address; getPrice(feed) is the market's own price view.
func GetLendingMarketABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "baseToken",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "baseTokenPriceFeed",
			"outputs": [{"name": "", "type": "address"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "numAssets",
			"outputs": [{"name": "", "type": "uint8"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "asset", "type": "address"}],
			"name": "getAssetInfoByAddress",
			"outputs": [
				{
					"components": [
						{"name": "offset", "type": "uint8"},
						{"name": "asset", "type": "address"},
						{"name": "priceFeed", "type": "address"},
						{"name": "scale", "type": "uint64"},
						{"name": "borrowCollateralFactor", "type": "uint64"},
						{"name": "liquidateCollateralFactor", "type": "uint64"},
						{"name": "liquidationFactor", "type": "uint64"},
						{"name": "supplyCap", "type": "uint128"}
					],
					"name": "",
					"type": "tuple"
				}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "priceFeed", "type": "address"}],
			"name": "getPrice",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

// AssetInfo mirrors the tuple returned by getAssetInfoByAddress.
// Field names must match the ABI component names for abi.ConvertType.
type AssetInfo struct {
	Offset                    uint8
	Asset                     common.Address
	PriceFeed                 common.Address
	Scale                     uint64
	BorrowCollateralFactor    uint64
	LiquidateCollateralFactor uint64
	LiquidationFactor         uint64
	SupplyCap                 *big.Int
}
