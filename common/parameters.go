package common

// perturbation prediction parameters
const (
	// CtrlCondition labels unperturbed cells.
	CtrlCondition = "ctrl"

	// PredictBatchSize is the number of synthetic control cells batched per
	// perturbation during inference-only prediction.
	PredictBatchSize = 300

	// TopDECount is the number of top differentially expressed genes used
	// for the focused metric subsets.
	TopDECount = 20

	NetworkCoExpress = "co-express"
	NetworkGO        = "go"
)
