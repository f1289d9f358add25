package discovery

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Attempt is one adapter's outcome during a failed discovery.
type Attempt struct {
	Adapter string
	Message string
}

// Error is returned when no adapter could resolve a feed. Its message lists
// every adapter tried together with its reason.
type Error struct {
	Protocol common.Address
	Asset    common.Address
	Attempts []Attempt
}

func (e *Error) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Adapter + ": " + a.Message
	}
	return fmt.Sprintf("feed discovery failed for protocol %s asset %s: [%s]. Tried %d adapters.",
		e.Protocol.Hex(), e.Asset.Hex(), strings.Join(parts, "; "), len(e.Attempts))
}
