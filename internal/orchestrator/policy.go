package orchestrator

import "github.com/smartdevs17/rsk-contract-deployer/pkg/utils"

// State is a step of the deployment state machine
type State string

const (
	StateStart          State = "start"
	StateAccountChecked State = "account_checked"
	StateSubmitted      State = "submitted"
	StateConfirmed      State = "confirmed"
	StateConfigured     State = "configured"
	StateRecordWritten  State = "record_written"
	StateVerified       State = "verified"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Severity decides how the orchestrator reacts to a failure kind
type Severity int

const (
	// NonFatal failures are logged as warnings and the run continues
	NonFatal Severity = iota
	// Fatal failures abort the run before any record exists
	Fatal
	// FatalAfterCommit failures abort a run whose on-chain effect already happened
	FatalAfterCommit
)

func (s Severity) String() string {
	switch s {
	case NonFatal:
		return "non_fatal"
	case Fatal:
		return "fatal"
	case FatalAfterCommit:
		return "manual_recovery_required"
	default:
		return "unknown"
	}
}

var policy = map[string]Severity{
	utils.ErrCodeAccountUnavailable:      Fatal,
	utils.ErrCodeSubmissionRejected:      Fatal,
	utils.ErrCodeSubmissionUncertain:     Fatal,
	utils.ErrCodeTransactionDropped:      Fatal,
	utils.ErrCodeTransactionReverted:     Fatal,
	utils.ErrCodeConfirmationTimeout:     Fatal,
	utils.ErrCodeInterrupted:             Fatal,
	utils.ErrCodeArtifactMissing:         NonFatal,
	utils.ErrCodeDescriptorWriteFailed:   NonFatal,
	utils.ErrCodeConfigurationStepFailed: NonFatal,
	utils.ErrCodeHistoryWriteFailed:      NonFatal,
	utils.ErrCodeVerificationFailed:      NonFatal,
	utils.ErrCodePersistence:             FatalAfterCommit,
}

// Classify returns the severity of err. Unknown kinds are fatal.
func Classify(err error) Severity {
	if err == nil {
		return NonFatal
	}
	if severity, ok := policy[utils.CodeOf(err)]; ok {
		return severity
	}
	return Fatal
}
