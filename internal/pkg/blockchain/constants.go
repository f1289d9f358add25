package blockchain

const (
	// DevAccountPrivateKey is the first prefunded account of anvil and hardhat
	// nodes started with the default mnemonic.
	DevAccountPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	// DevChainID is the chain id anvil and hardhat report by default.
	DevChainID int64 = 31337
)
