package telemetry

import (
	"go.dedis.ch/onet/v3/log"
)

// Recorder receives scalar metric logs keyed by name, at per-step and
// per-epoch granularity. It is an optional collaborator: trainers work
// identically against Nop.
type Recorder interface {
	Log(name string, value float64)
}

// Nop discards every metric.
type Nop struct{}

func (Nop) Log(string, float64) {}

// LogRecorder forwards metrics to the process log.
type LogRecorder struct{}

func (LogRecorder) Log(name string, value float64) {
	log.Lvlf2("%s: %v", name, value)
}
