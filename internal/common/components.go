package common

const (
	ComponentImporter        = "importer"
	ComponentClassifier      = "classifier"
	ComponentTokenAggregator = "token-aggregator"
	ComponentSnapshotFolder  = "snapshot-folder"
	ComponentCheckpoint      = "checkpoint"
	ComponentNodeClient      = "node-client"
	ComponentAccountResolver = "account-resolver"
	ComponentNotifier        = "notifier"
	ComponentStore           = "store"
	ComponentMaintenance     = "maintenance"
	ComponentMetrics         = "metrics"
)

var AllComponents = map[string]struct{}{
	ComponentImporter:        {},
	ComponentClassifier:      {},
	ComponentTokenAggregator: {},
	ComponentSnapshotFolder:  {},
	ComponentCheckpoint:      {},
	ComponentNodeClient:      {},
	ComponentAccountResolver: {},
	ComponentNotifier:        {},
	ComponentStore:           {},
	ComponentMaintenance:     {},
	ComponentMetrics:         {},
}
