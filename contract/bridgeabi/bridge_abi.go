package bridgeabi

//nolint:golint
import (
	_ "embed"

	"github.com/omni/bridge-tx-tracker/contract/abi"
)

//go:embed bridge.json
var bridgeJSONABI string

//go:embed vault.json
var vaultJSONABI string

//go:embed quota_manager.json
var quotaManagerJSONABI string

var (
	BridgeABI       = abi.MustReadABI(bridgeJSONABI)
	VaultABI        = abi.MustReadABI(vaultJSONABI)
	QuotaManagerABI = abi.MustReadABI(quotaManagerJSONABI)

	MessageSentEventSignature = BridgeABI.Events["MessageSent"].ID
)
