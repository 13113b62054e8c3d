package domain

import "time"

// EvaluationEventType names the event published after a training run.
const EvaluationEventType = "evaluation.completed"

// EvaluationEvent announces a finished training and evaluation run.
type EvaluationEvent struct {
	RunID       string        `json:"run_id"`
	Fingerprint string        `json:"dataset_fingerprint"`
	Fusion      string        `json:"fusion"`
	TrainRows   int           `json:"train_rows"`
	TestRows    int           `json:"test_rows"`
	Trained     []string      `json:"trained"`
	Skipped     []string      `json:"skipped,omitempty"`
	Failed      []string      `json:"failed,omitempty"`
	Metrics     MetricsRecord `json:"metrics"`
	CompletedAt time.Time     `json:"completed_at"`
}
