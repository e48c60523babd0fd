// Package inference provides score sources: adapters that run one face model
// against a boarding image and return its ModelScoreReport.
package inference

import (
	"context"
	"errors"

	"github.com/okian/boardcheck/internal/domain/model"
)

// Source runs one model on one image. A failure is per model; callers omit
// the model from the decision rather than abort it.
type Source interface {
	Infer(ctx context.Context, image []byte, modelName string) (model.ModelScoreReport, error)
}

// Reason classifies an inference failure for metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoFaceDetected):
		return "no_face"
	case errors.Is(err, ErrUnknownModel):
		return "unknown_model"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream"
	}
}
