package blockchain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
)

// ProtocolConfig describes a known mainnet lending deployment. Forks of
// mainnet inherit these addresses.
type ProtocolConfig struct {
	Name                  string
	Kind                  entity.ProtocolKind
	PoolAddress           common.Address
	PoolAddressesProvider common.Address
}

var ProtocolRegistry = map[common.Address]ProtocolConfig{
	common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"): {
		Name:                  "Aave V3",
		Kind:                  entity.ProtocolAaveV3,
		PoolAddress:           common.HexToAddress("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"),
		PoolAddressesProvider: common.HexToAddress("0x2f39d218133AFaB8F2B819B1066c7E434Ad94E9e"),
	},
	common.HexToAddress("0x4e033931ad43597d96d6bcc25c280717730b58b1"): {
		Name:                  "Aave V3 Lido",
		Kind:                  entity.ProtocolAaveV3,
		PoolAddress:           common.HexToAddress("0x4e033931ad43597d96d6bcc25c280717730b58b1"),
		PoolAddressesProvider: common.HexToAddress("0xcfBf336fe147D643B9Cb705648500e101504B16d"),
	},
	common.HexToAddress("0xAe05Cd22df81871bc7cC2a04BeCfb516bFe332C8"): {
		Name:                  "Aave V3 RWA",
		Kind:                  entity.ProtocolAaveV3,
		PoolAddress:           common.HexToAddress("0xAe05Cd22df81871bc7cC2a04BeCfb516bFe332C8"),
		PoolAddressesProvider: common.HexToAddress("0x5D39E06b825C1F2B80bf2756a73e28eFAA128ba0"),
	},
	common.HexToAddress("0xC13e21B648A5Ee794902342038FF3aDAB66BE987"): {
		Name:                  "Sparklend",
		Kind:                  entity.ProtocolSparkLend,
		PoolAddress:           common.HexToAddress("0xC13e21B648A5Ee794902342038FF3aDAB66BE987"),
		PoolAddressesProvider: common.HexToAddress("0x02C3eA4e34C0cBd694D2adFa2c690EECbC1793eE"),
	},
	common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3"): {
		Name:        "Compound V3 USDC",
		Kind:        entity.ProtocolLendingMarket,
		PoolAddress: common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3"),
	},
	common.HexToAddress("0xA17581A9E3356d9A858b789D68B4d866e593aE94"): {
		Name:        "Compound V3 WETH",
		Kind:        entity.ProtocolLendingMarket,
		PoolAddress: common.HexToAddress("0xA17581A9E3356d9A858b789D68B4d866e593aE94"),
	},
}

func GetProtocolConfig(protocolAddress common.Address) (ProtocolConfig, bool) {
	config, exists := ProtocolRegistry[protocolAddress]
	return config, exists
}

// KindHint returns the registered kind for a protocol address, or the empty
// kind when the address is unknown.
func KindHint(protocolAddress common.Address) entity.ProtocolKind {
	if config, ok := ProtocolRegistry[protocolAddress]; ok {
		return config.Kind
	}
	return ""
}
