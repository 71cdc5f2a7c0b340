package main

import (
	"flag"
	"fmt"
	"net/http"
	"strings"

	"github.com/BurntSushi/toml"
	"go.dedis.ch/onet/v3/log"

	"github.com/ldsec/pertNet/common"
	"github.com/ldsec/pertNet/pertnet"
	"github.com/ldsec/pertNet/telemetry"
	"github.com/ldsec/pertNet/utils"
)

// RunConfig describes one training run.
type RunConfig struct {
	NGenes        int
	NCellsPerPert int
	NPerts        int
	Split         string
	Seed          int64

	Epochs      int
	LearnRate   float64
	WeightDecay float64

	HiddenSize        int
	DecoderHiddenSize int
	Uncertainty       bool
	DirectionLambda   float64

	OutDir        string
	TelemetryAddr string
}

func main() {
	configPath := flag.String("config", "runconfig.toml", "run configuration file")
	flag.Parse()

	var cfg RunConfig
	if _, err := toml.DecodeFile(*configPath, &cfg); err != nil {
		log.Fatal("reading run config:", err)
	}

	geneNames := make([]string, cfg.NGenes)
	for i := range geneNames {
		geneNames[i] = fmt.Sprintf("G%d", i)
	}
	perts := make([][]string, cfg.NPerts)
	for i := range perts {
		if i%3 == 2 {
			perts[i] = []string{geneNames[i%cfg.NGenes], geneNames[(i+7)%cfg.NGenes]}
		} else {
			perts[i] = []string{geneNames[i%cfg.NGenes]}
		}
	}

	pd := common.Synthetic(geneNames, cfg.NCellsPerPert, perts, cfg.Split, cfg.Seed)

	opts := []pertnet.Option{}
	if cfg.TelemetryAddr != "" {
		hub := telemetry.NewHub()
		go func() {
			log.Lvl1("telemetry hub listening on", cfg.TelemetryAddr)
			if err := http.ListenAndServe(cfg.TelemetryAddr, hub); err != nil {
				log.Error("telemetry hub:", err)
			}
		}()
		opts = append(opts, pertnet.WithTelemetry(telemetry.NewWSRecorder(hub)))
	}

	p := pertnet.New(pd, opts...)

	hp := pertnet.DefaultHyperparams()
	if cfg.HiddenSize > 0 {
		hp.HiddenSize = cfg.HiddenSize
	}
	if cfg.DecoderHiddenSize > 0 {
		hp.DecoderHiddenSize = cfg.DecoderHiddenSize
	}
	hp.Uncertainty = cfg.Uncertainty
	if cfg.DirectionLambda > 0 {
		hp.DirectionLambda = cfg.DirectionLambda
	}
	if err := p.ModelInitialize(hp); err != nil {
		log.Fatal("initializing model:", err)
	}

	result, err := p.Train(cfg.Epochs, cfg.LearnRate, cfg.WeightDecay)
	if err != nil {
		log.Fatal("training:", err)
	}

	if cfg.OutDir != "" {
		if err := p.SaveModel(cfg.OutDir); err != nil {
			log.Fatal("saving model:", err)
		}
		if err := utils.TrainingCurve(result.EpochLoss, cfg.OutDir+"/training_loss.png"); err != nil {
			log.Error("plotting training curve:", err)
		}
		log.Lvl1("model saved to", cfg.OutDir)
	}

	// sample prediction with the trained model
	sample := [][]string{{geneNames[0]}, {geneNames[0], geneNames[1]}}
	preds, unc, err := p.Predict(sample)
	if err != nil {
		log.Fatal("predicting:", err)
	}
	for label, vec := range preds {
		line := fmt.Sprintf("%s: mean predicted expression of first genes %.4f", label, vec[:min(5, len(vec))])
		if unc != nil {
			line += fmt.Sprintf(" (confidence %.4f)", unc[label])
		}
		log.Lvl1(strings.TrimSpace(line))
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
