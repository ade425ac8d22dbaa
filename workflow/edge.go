package workflow

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/BaSui01/appflow/types"
)

// EdgeData is a directed connection between two nodes. SourceHandleID is
// set when the source node exposes multiple outgoing branches (question
// classifier); nil means the node's single default handle.
type EdgeData struct {
	ID             uuid.UUID  `json:"id"`
	Source         uuid.UUID  `json:"source"`
	SourceType     NodeType   `json:"source_type"`
	SourceHandleID *uuid.UUID `json:"source_handle_id,omitempty"`
	Target         uuid.UUID  `json:"target"`
	TargetType     NodeType   `json:"target_type"`
}

// ParseEdgeData decodes a raw edge.
func ParseEdgeData(raw json.RawMessage) (*EdgeData, error) {
	edge := &EdgeData{}
	if err := json.Unmarshal(raw, edge); err != nil {
		return nil, types.WrapError(types.ErrValidate, "工作流边数据类型出错，请核实后重试", err)
	}
	return edge, nil
}

// sameConnection reports whether two edges connect the same endpoints
// through the same handle. Such duplicates are rejected.
func (e *EdgeData) sameConnection(other *EdgeData) bool {
	if e.Source != other.Source || e.Target != other.Target {
		return false
	}
	switch {
	case e.SourceHandleID == nil && other.SourceHandleID == nil:
		return true
	case e.SourceHandleID != nil && other.SourceHandleID != nil:
		return *e.SourceHandleID == *other.SourceHandleID
	}
	return false
}
