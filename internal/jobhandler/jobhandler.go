// Package jobhandler contains the type-specific executors for each job kind.
// Every handler is a thin saga participant: it parses its own input shape,
// does the risky work (provider call, upload), and compensates the spend via
// Task.RefundSpend before surfacing any error. Handlers never write job state
// directly; the executor owns the terminal transition.
package jobhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"engine/internal/domain"
	"engine/internal/engine"
)

// AssetRef points at one stored artifact in a job result.
type AssetRef struct {
	Key    string `json:"key"`
	Format string `json:"format"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// decodeInput unmarshals the job's input payload into v, normalizing
// malformed payloads to ErrValidation.
func decodeInput(job *domain.Job, v any) error {
	if len(job.InputJSON) == 0 {
		return fmt.Errorf("%w: empty input", domain.ErrValidation)
	}
	if err := json.Unmarshal(job.InputJSON, v); err != nil {
		return fmt.Errorf("%w: malformed input: %v", domain.ErrValidation, err)
	}
	return nil
}

// assetKey lays out artifact keys under the owning job.
func assetKey(jobID, filename string) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, filename)
}

// extForMIME maps the formats providers return to file extensions.
func extForMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "video/mp4":
		return "mp4"
	case "audio/mpeg":
		return "mp3"
	case "audio/wav":
		return "wav"
	default:
		return "bin"
	}
}

// abort refunds the spend and returns the original error. Refund failures are
// joined so the operator sees both; the job still fails either way.
func abort(ctx context.Context, task *engine.Task, reason string, err error) ([]byte, error) {
	if refundErr := task.RefundSpend(ctx, reason); refundErr != nil {
		return nil, fmt.Errorf("%w (additionally: %v)", err, refundErr)
	}
	return nil, err
}

// report forwards progress and aborts with a refund when the job was
// cancelled underneath the handler.
func report(ctx context.Context, task *engine.Task, progress int, message string) error {
	err := task.Report(ctx, progress, message)
	if err == nil {
		return nil
	}
	if engine.Cancelled(err) {
		if refundErr := task.RefundSpend(ctx, "job cancelled"); refundErr != nil {
			return fmt.Errorf("%w (additionally: %v)", err, refundErr)
		}
	}
	return err
}
