package harness

// TraceEvent records what one scenario step did.
//
// Goals are named by scenario label, or "<recurrence>#<index>" for spawned
// instances, so traces stay readable and independent of generated ids.
type TraceEvent struct {
	Step int    `json:"step"`
	Op   string `json:"op"`

	// At is the clock offset from the scenario start when the step ran.
	At   string `json:"at"`
	Goal string `json:"goal,omitempty"`

	// Effects lists the step's observable outcomes in engine order.
	Effects []string `json:"effects,omitempty"`

	// Error is the engine error code when the step was refused.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and all assertions hold.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists step and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
