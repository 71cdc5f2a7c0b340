package model

import (
	"github.com/ldsec/pertNet/common"
)

// Config is the immutable-after-init hyperparameter set of one model,
// including the two similarity graphs. It is persisted verbatim next to the
// learned parameters so a model can be reconstructed exactly; Device and
// NumGenes are re-derived from the live dataset context on restore.
type Config struct {
	HiddenSize                    int `toml:"hidden_size"`
	NumGOGNNLayers                int `toml:"num_go_gnn_layers"`
	NumGeneGNNLayers              int `toml:"num_gene_gnn_layers"`
	DecoderHiddenSize             int `toml:"decoder_hidden_size"`
	NumSimilarGenesGOGraph        int `toml:"num_similar_genes_go_graph"`
	NumSimilarGenesCoExpressGraph int `toml:"num_similar_genes_co_express_graph"`
	// CoexpressThreshold gates the edges of both similarity graphs.
	CoexpressThreshold float64 `toml:"coexpress_threshold"`
	Uncertainty        bool    `toml:"uncertainty"`
	UncertaintyReg     float64 `toml:"uncertainty_reg"`
	DirectionLambda    float64 `toml:"direction_lambda"`

	GGO        *common.EdgeList `toml:"g_go"`
	GCoexpress *common.EdgeList `toml:"g_coexpress"`

	Device   string `toml:"device"`
	NumGenes int    `toml:"num_genes"`
}
