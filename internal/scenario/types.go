package scenario

// Operation defines the operation under test.
type Operation struct {
	Category string `yaml:"category"`
	Target   string `yaml:"target"`
}

// Case is one test case within a scenario.
type Case struct {
	Op     Operation `yaml:"op"`
	Expect string    `yaml:"expect"`
	// Rule optionally pins the rule id that must decide the case.
	Rule string `yaml:"rule,omitempty"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index        int    `json:"index"`
	Passed       bool   `json:"passed"`
	Category     string `json:"category"`
	Target       string `json:"target"`
	Expected     string `json:"expected"`
	Actual       string `json:"actual"`
	ExpectedRule string `json:"expected_rule,omitempty"`
	ActualRule   string `json:"actual_rule"`
	Reason       string `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
