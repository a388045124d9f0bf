package provision

import "fmt"

// Step names a stage of the provisioning workflow.
type Step string

const (
	StepInput     Step = "collect-input"
	StepAuthority Step = "provision-authority"
	StepKey       Step = "provision-key"
	StepCSR       Step = "generate-csr"
	StepIssue     Step = "issue-certificate"
	StepWrite     Step = "write-output"
	StepRecord    Step = "record-ledger"
	StepPublish   Step = "publish-parameters"
)

// StepError is the single failure result of a run. Every step failure maps to
// exit code 1 and no resources created by earlier steps are removed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ExitCode is read by kong when the error reaches FatalIfErrorf.
func (e *StepError) ExitCode() int {
	return 1
}
