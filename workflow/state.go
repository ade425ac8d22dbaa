package workflow

// WorkflowState is the reducer-merged execution context shared by all
// nodes of a run. Inputs and Outputs merge as right-biased shallow unions;
// NodeResults merges by concatenation and is append-only.
type WorkflowState struct {
	Inputs      map[string]any `json:"inputs"`
	Outputs     map[string]any `json:"outputs"`
	NodeResults []*NodeResult  `json:"node_results"`
}

// NewWorkflowState creates a state seeded with the run inputs.
func NewWorkflowState(inputs map[string]any) *WorkflowState {
	if inputs == nil {
		inputs = map[string]any{}
	}
	return &WorkflowState{
		Inputs:  inputs,
		Outputs: map[string]any{},
	}
}

// mergeMaps is the right-biased shallow union reducer.
func mergeMaps(left, right map[string]any) map[string]any {
	merged := make(map[string]any, len(left)+len(right))
	for k, v := range left {
		merged[k] = v
	}
	for k, v := range right {
		merged[k] = v
	}
	return merged
}

// MergeState applies a node's partial state onto the current state and
// returns the merged result. The update never replaces node results; they
// only ever append, so ordering reflects completion order.
func MergeState(current, update *WorkflowState) *WorkflowState {
	if current == nil {
		current = NewWorkflowState(nil)
	}
	if update == nil {
		return current
	}
	merged := &WorkflowState{
		Inputs:  mergeMaps(current.Inputs, update.Inputs),
		Outputs: mergeMaps(current.Outputs, update.Outputs),
	}
	merged.NodeResults = make([]*NodeResult, 0, len(current.NodeResults)+len(update.NodeResults))
	merged.NodeResults = append(merged.NodeResults, current.NodeResults...)
	merged.NodeResults = append(merged.NodeResults, update.NodeResults...)
	return merged
}

// resultDelta builds the partial state appending a single node result.
func resultDelta(result *NodeResult) *WorkflowState {
	return &WorkflowState{NodeResults: []*NodeResult{result}}
}
