package entity

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ProtocolKind selects the protocol-specific price accessor used for verification
// and acts as an ordering hint for feed discovery.
type ProtocolKind string

const (
	ProtocolAaveV3        ProtocolKind = "aave-v3"
	ProtocolSparkLend     ProtocolKind = "sparklend"
	ProtocolLendingMarket ProtocolKind = "lending-market"
)

// ParseProtocolKind normalizes a user-supplied kind. An empty string is allowed
// and means "no protocol-level verification".
func ParseProtocolKind(s string) (ProtocolKind, error) {
	switch k := ProtocolKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", ProtocolAaveV3, ProtocolSparkLend, ProtocolLendingMarket:
		return k, nil
	default:
		return "", fmt.Errorf("unknown protocol kind %q (supported: %s, %s, %s)",
			s, ProtocolAaveV3, ProtocolSparkLend, ProtocolLendingMarket)
	}
}

// IsAaveFamily reports whether the kind uses the Aave V3 pool/oracle layout.
func (k ProtocolKind) IsAaveFamily() bool {
	return k == ProtocolAaveV3 || k == ProtocolSparkLend
}

// CacheKey builds the original-price cache key: network:protocol:asset.
// Addresses are lower-cased so checksummed and plain inputs share an entry.
func CacheKey(network string, protocol, asset common.Address) string {
	return fmt.Sprintf("%s:%s:%s", network, strings.ToLower(protocol.Hex()), strings.ToLower(asset.Hex()))
}
