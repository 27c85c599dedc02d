package inference

import (
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Kind is the outcome of one routed analysis.
type Kind int

const (
	// KindPrediction carries a schema-shaped result, real or fallback.
	KindPrediction Kind = iota
	// KindNoModelActive carries the no-model-active sentinel object.
	KindNoModelActive
	// KindFailure carries an unrecovered error from the generative backend
	// or the configuration store.
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindPrediction:
		return "prediction"
	case KindNoModelActive:
		return "no_model_active"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Source records where a prediction came from.
type Source string

const (
	SourceLocal           Source = "local"
	SourceMock            Source = "mock"
	SourceDefaultFallback Source = "default_fallback"
	SourceRemote          Source = "remote"
	SourceSynthesized     Source = "synthesized"
	SourceNone            Source = "none"
)

// Outcome is the result of Router.Analyze. Prediction is set for
// KindPrediction and KindNoModelActive; Err only for KindFailure.
type Outcome struct {
	Kind       Kind
	Prediction models.Prediction
	Source     Source
	// Model is the resolved model, nil when none was found.
	Model *models.ModelRecord
	Err   error
}

func predicted(p models.Prediction, src Source, m *models.ModelRecord) Outcome {
	return Outcome{Kind: KindPrediction, Prediction: p, Source: src, Model: m}
}

func noModelActive(p models.Prediction) Outcome {
	return Outcome{Kind: KindNoModelActive, Prediction: p, Source: SourceNone}
}

func failed(err error, m *models.ModelRecord) Outcome {
	return Outcome{Kind: KindFailure, Source: SourceNone, Model: m, Err: err}
}
