package outbound

import "github.com/ethereum/go-ethereum/accounts/abi"

// Artifact is a compiled mock feed contract.
type Artifact struct {
	Name             string
	Decimals         uint8
	ABI              *abi.ABI
	Bytecode         []byte // creation code
	DeployedBytecode []byte // runtime code, what gets injected
}

// ArtifactProvider supplies mock feed artifacts by decimal precision.
type ArtifactProvider interface {
	Artifact(decimals uint8) (*Artifact, error)
}
