package pertnet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	"gonum.org/v1/gonum/mat"

	"github.com/ldsec/pertNet/common"
	"github.com/ldsec/pertNet/model"
	"github.com/ldsec/pertNet/telemetry"
	"github.com/ldsec/pertNet/utils"
)

// ErrNoModelInitialized is returned by operations that need an initialized
// model (save, train, predict) before ModelInitialize was called.
var ErrNoModelInitialized = errors.New("no model initialized")

const (
	configFile = "config.toml"
	modelFile  = "model.json"

	// wrapped/parallel training exports prefix every parameter name
	wrappedKeyPrefix = "module."
)

// PertNet owns the predictor for one dataset: the configuration, the
// actively trained model and the best validation snapshot, plus the
// dataset-derived constants every loss and metric needs (control expression,
// dict filter, gene universe).
type PertNet struct {
	pd       *common.PertData
	device   string
	recorder telemetry.Recorder

	config    *model.Config
	model     *model.Model
	bestModel *model.Model

	geneList       []string
	numGenes       int
	ctrlExpression []float64
	dictFilter     map[string][]int
}

type Option func(*PertNet)

func WithDevice(device string) Option {
	return func(p *PertNet) { p.device = device }
}

// WithTelemetry injects a metric recorder; without it metrics are dropped.
func WithTelemetry(r telemetry.Recorder) Option {
	return func(p *PertNet) { p.recorder = r }
}

func New(pd *common.PertData, opts ...Option) *PertNet {
	p := &PertNet{
		pd:             pd,
		device:         "cpu",
		recorder:       telemetry.Nop{},
		geneList:       pd.GeneNames,
		numGenes:       pd.NumGenes(),
		ctrlExpression: pd.CtrlMean(),
		dictFilter:     pd.NonZerosGeneIdx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *PertNet) GeneList() []string {
	return p.geneList
}

func (p *PertNet) Config() *model.Config {
	return p.config
}

func (p *PertNet) BestModel() *model.Model {
	return p.bestModel
}

// Hyperparams selects the model architecture and loss configuration. The
// two graphs may be supplied directly; when nil they are computed from the
// dataset.
type Hyperparams struct {
	HiddenSize                    int
	NumGOGNNLayers                int
	NumGeneGNNLayers              int
	DecoderHiddenSize             int
	NumSimilarGenesGOGraph        int
	NumSimilarGenesCoExpressGraph int
	CoexpressThreshold            float64
	Uncertainty                   bool
	UncertaintyReg                float64
	DirectionLambda               float64
	GGO                           *common.EdgeList
	GCoexpress                    *common.EdgeList
}

func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		HiddenSize:                    64,
		NumGOGNNLayers:                1,
		NumGeneGNNLayers:              1,
		DecoderHiddenSize:             16,
		NumSimilarGenesGOGraph:        20,
		NumSimilarGenesCoExpressGraph: 20,
		CoexpressThreshold:            0.4,
		Uncertainty:                   false,
		UncertaintyReg:                1,
		DirectionLambda:               1e-1,
	}
}

// ModelInitialize builds the configuration, computing any similarity graph
// not supplied, and constructs a fresh model plus its best-model copy.
// Calling it again replaces the configuration and both model instances.
func (p *PertNet) ModelInitialize(hp Hyperparams) error {
	cfg := &model.Config{
		HiddenSize:                    hp.HiddenSize,
		NumGOGNNLayers:                hp.NumGOGNNLayers,
		NumGeneGNNLayers:              hp.NumGeneGNNLayers,
		DecoderHiddenSize:             hp.DecoderHiddenSize,
		NumSimilarGenesGOGraph:        hp.NumSimilarGenesGOGraph,
		NumSimilarGenesCoExpressGraph: hp.NumSimilarGenesCoExpressGraph,
		CoexpressThreshold:            hp.CoexpressThreshold,
		Uncertainty:                   hp.Uncertainty,
		UncertaintyReg:                hp.UncertaintyReg,
		DirectionLambda:               hp.DirectionLambda,
		GGO:                           hp.GGO,
		GCoexpress:                    hp.GCoexpress,
		Device:                        p.device,
		NumGenes:                      p.numGenes,
	}

	if cfg.GCoexpress == nil {
		el, err := utils.GetSimilarityNetwork(common.NetworkCoExpress, p.pd, hp.CoexpressThreshold, hp.NumSimilarGenesCoExpressGraph)
		if err != nil {
			return err
		}
		cfg.GCoexpress = el
	}
	if cfg.GGO == nil {
		el, err := utils.GetSimilarityNetwork(common.NetworkGO, p.pd, hp.CoexpressThreshold, hp.NumSimilarGenesGOGraph)
		if err != nil {
			return err
		}
		cfg.GGO = el
	}

	p.config = cfg
	p.model = model.NewModel(cfg)
	p.bestModel = p.model.Clone()
	return nil
}

// SaveModel writes the configuration and the best model's parameter state
// into dir, creating it if needed.
func (p *PertNet) SaveModel(dir string) error {
	if p.config == nil {
		return ErrNoModelInitialized
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	cfgBytes, err := toml.Marshal(p.config)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, configFile), cfgBytes, 0o644); err != nil {
		return err
	}

	stateBytes, err := model.EncodeStateDict(p.bestModel.StateDict())
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, modelFile), stateBytes, 0o644)
}

// LoadPretrained restores a model saved by SaveModel. Device and gene count
// come from the live dataset context, not from the artifact, so they are
// stripped before re-initialization. Parameter names exported by a wrapped
// parallel-training run are normalized by removing their prefix.
func (p *PertNet) LoadPretrained(dir string) error {
	cfgBytes, err := os.ReadFile(filepath.Join(dir, configFile))
	if err != nil {
		return err
	}
	cfg := &model.Config{}
	if err := toml.Unmarshal(cfgBytes, cfg); err != nil {
		return err
	}

	hp := Hyperparams{
		HiddenSize:                    cfg.HiddenSize,
		NumGOGNNLayers:                cfg.NumGOGNNLayers,
		NumGeneGNNLayers:              cfg.NumGeneGNNLayers,
		DecoderHiddenSize:             cfg.DecoderHiddenSize,
		NumSimilarGenesGOGraph:        cfg.NumSimilarGenesGOGraph,
		NumSimilarGenesCoExpressGraph: cfg.NumSimilarGenesCoExpressGraph,
		CoexpressThreshold:            cfg.CoexpressThreshold,
		Uncertainty:                   cfg.Uncertainty,
		UncertaintyReg:                cfg.UncertaintyReg,
		DirectionLambda:               cfg.DirectionLambda,
		GGO:                           cfg.GGO,
		GCoexpress:                    cfg.GCoexpress,
	}
	if err := p.ModelInitialize(hp); err != nil {
		return err
	}

	stateBytes, err := os.ReadFile(filepath.Join(dir, modelFile))
	if err != nil {
		return err
	}
	sd, err := model.DecodeStateDict(stateBytes)
	if err != nil {
		return err
	}

	wrapped := false
	for name := range sd {
		if strings.HasPrefix(name, wrappedKeyPrefix) {
			wrapped = true
			break
		}
	}
	if wrapped {
		normalized := make(map[string]*mat.Dense, len(sd))
		for name, w := range sd {
			normalized[strings.TrimPrefix(name, wrappedKeyPrefix)] = w
		}
		sd = normalized
	}

	if err := p.model.LoadStateDict(sd); err != nil {
		return fmt.Errorf("loading pretrained state: %w", err)
	}
	p.bestModel = p.model.Clone()
	return nil
}
