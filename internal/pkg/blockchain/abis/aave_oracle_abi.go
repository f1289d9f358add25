package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetAaveOracleABI returns the ABI for the Aave V3 / SparkLend AaveOracle contract.
// getSourceOfAsset locates the feed; getAssetPrice is the protocol's own price view.
func GetAaveOracleABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [
				{"name": "asset", "type": "address"}
			],
			"name": "getSourceOfAsset",
			"outputs": [
				{"name": "", "type": "address"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "asset", "type": "address"}
			],
			"name": "getAssetPrice",
			"outputs": [
				{"name": "", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "assets", "type": "address[]"}
			],
			"name": "getAssetsPrices",
			"outputs": [
				{"name": "", "type": "uint256[]"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "BASE_CURRENCY_UNIT",
			"outputs": [
				{"name": "", "type": "uint256"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
