package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMockFeedSetterABI returns the write surface of the injected mock feed.
// updateAnswer(int256) stores the answer, bumps the round id and stamps updatedAt.
func GetMockFeedSetterABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"inputs": [{"name": "_answer", "type": "int256"}],
			"name": "updateAnswer",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [{"name": "_answer", "type": "int256"}],
			"name": "setPrice",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
}
