package supervisor

type startOptions struct {
	executionID string
	allowDraft  bool
}

type StartOption func(*startOptions)

// WithExecutionID makes Start use id instead of generating one.
func WithExecutionID(id string) StartOption {
	return func(o *startOptions) {
		o.executionID = id
	}
}

// AllowDraft lets flows that are not published be started, for local tooling.
func AllowDraft() StartOption {
	return func(o *startOptions) {
		o.allowDraft = true
	}
}
