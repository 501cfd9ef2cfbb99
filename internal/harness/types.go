package harness

// OutcomeOK is the outcome of a request the conductor answered
// successfully. Failed requests record the conductor's error type.
const OutcomeOK = "ok"

// TraceEvent is one request answered by the fake conductor.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	API     string `json:"api"`
	Method  string `json:"method"`
	Outcome string `json:"outcome"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the requests that reached the conductor, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors describes each failed expectation.
	Errors []string `json:"errors,omitempty"`

	// State maps clone ids to their final lifecycle state.
	State map[string]string `json:"state,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]string),
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
