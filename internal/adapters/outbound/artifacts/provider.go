// Package artifacts provides the compiled mock price feed contracts that get
// injected over live feed addresses.
package artifacts

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

//go:embed contracts/*.json
var contractsFS embed.FS

var artifactFiles = map[uint8]string{
	entity.Decimals8:  "contracts/mock_aggregator_8.json",
	entity.Decimals18: "contracts/mock_aggregator_18.json",
}

// artifactJSON is the on-disk compiler output layout.
type artifactJSON struct {
	ContractName     string          `json:"contractName"`
	Decimals         uint8           `json:"decimals"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
}

// Compile-time check that Provider implements outbound.ArtifactProvider.
var _ outbound.ArtifactProvider = (*Provider)(nil)

// Provider loads embedded mock artifacts on first use and caches them by precision.
type Provider struct {
	mu    sync.Mutex
	cache map[uint8]*outbound.Artifact
}

// NewProvider creates a Provider backed by the embedded contracts.
func NewProvider() *Provider {
	return &Provider{cache: make(map[uint8]*outbound.Artifact)}
}

// Artifact returns the mock compiled for the given precision. Only 8 and 18
// decimals are shipped.
func (p *Provider) Artifact(decimals uint8) (*outbound.Artifact, error) {
	if err := entity.ValidateDecimals(decimals); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if a, ok := p.cache[decimals]; ok {
		return a, nil
	}

	a, err := load(artifactFiles[decimals])
	if err != nil {
		return nil, err
	}
	if a.Decimals != decimals {
		return nil, fmt.Errorf("artifact %s declares %d decimals, want %d", a.Name, a.Decimals, decimals)
	}
	p.cache[decimals] = a
	return a, nil
}

func load(path string) (*outbound.Artifact, error) {
	raw, err := contractsFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", path, err)
	}

	var doc artifactJSON
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding artifact %s: %w", path, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(doc.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI of %s: %w", doc.ContractName, err)
	}

	creation, err := hexutil.Decode(doc.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode of %s: %w", doc.ContractName, err)
	}
	runtime, err := hexutil.Decode(doc.DeployedBytecode)
	if err != nil {
		return nil, fmt.Errorf("decoding deployedBytecode of %s: %w", doc.ContractName, err)
	}
	if len(runtime) == 0 {
		return nil, fmt.Errorf("artifact %s has empty deployedBytecode", doc.ContractName)
	}

	return &outbound.Artifact{
		Name:             doc.ContractName,
		Decimals:         doc.Decimals,
		ABI:              &parsed,
		Bytecode:         creation,
		DeployedBytecode: runtime,
	}, nil
}
