package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetPoolAddressesProviderABI returns the ABI for the Aave/SparkLend PoolAddressesProvider contract.
// Used to resolve the oracle address via getPriceOracle().
func GetPoolAddressesProviderABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "getPriceOracle",
			"outputs": [
				{"name": "", "type": "address"}
			],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [],
			"name": "getPool",
			"outputs": [
				{"name": "", "type": "address"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}

// GetAavePoolABI returns the subset of the Aave V3 / SparkLend Pool ABI needed
// to walk from a pool to its PoolAddressesProvider.
func GetAavePoolABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [],
			"name": "ADDRESSES_PROVIDER",
			"outputs": [
				{"name": "", "type": "address"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
