package publish

// Interrupter is the capability through which the caller stops a batch: it
// returns a non-empty reason when publishing must halt. Tasks poll it at
// every suspension point.
type Interrupter func() string

// Check converts a fired interrupter into an InterruptedError.
func (i Interrupter) Check() error {
	if i == nil {
		return nil
	}
	if reason := i(); reason != "" {
		return &InterruptedError{Reason: reason}
	}
	return nil
}
