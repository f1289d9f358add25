package entity

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseProtocolKind(t *testing.T) {
	tests := []struct {
		in      string
		want    ProtocolKind
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "aave-v3", want: ProtocolAaveV3},
		{in: " SparkLend ", want: ProtocolSparkLend},
		{in: "lending-market", want: ProtocolLendingMarket},
		{in: "uniswap", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseProtocolKind(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseProtocolKind(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseProtocolKind(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseProtocolKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestProtocolKind_IsAaveFamily(t *testing.T) {
	if !ProtocolAaveV3.IsAaveFamily() || !ProtocolSparkLend.IsAaveFamily() {
		t.Error("aave-v3 and sparklend should be aave family")
	}
	if ProtocolLendingMarket.IsAaveFamily() {
		t.Error("lending-market should not be aave family")
	}
}

func TestCacheKey(t *testing.T) {
	protocol := common.HexToAddress("0xC13e21B648A5Ee794902342038FF3aDAB66BE987")
	asset := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	got := CacheKey("mainnet", protocol, asset)
	want := "mainnet:0xc13e21b648a5ee794902342038ff3adab66be987:0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
	if got != want {
		t.Errorf("CacheKey = %q, want %q", got, want)
	}

	if CacheKey("base", protocol, asset) == got {
		t.Error("different networks must produce different keys")
	}
}
