package models

import "time"

// StepStatus is the outcome of a configuration step
type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
)

// StepOutcome records how a named post-deployment step ended
type StepOutcome struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	TxHash   string        `json:"tx_hash,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether the step completed
func (o StepOutcome) Succeeded() bool {
	return o.Status == StepSucceeded
}
