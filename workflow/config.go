package workflow

import (
	"encoding/json"
	"regexp"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/types"
)

// 工作流名称须以字母或下划线开头，只能包含字母、数字和下划线。
var workflowNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// 工作流描述的最大长度。
const workflowDescriptionMaxLength = 1024

// WorkflowConfig is the validated, immutable definition of a workflow.
// Nodes and edges are stored in flat maps keyed by id and referenced by
// id, never by pointer; the ordered id slices preserve declaration order
// for display and deterministic compilation.
type WorkflowConfig struct {
	AccountID   uuid.UUID
	Name        string
	Description string
	Nodes       map[uuid.UUID]NodeData
	Edges       map[uuid.UUID]*EdgeData

	nodeOrder []uuid.UUID
	edgeOrder []uuid.UUID
}

// NodeList returns the nodes in declaration order.
func (c *WorkflowConfig) NodeList() []NodeData {
	nodes := make([]NodeData, 0, len(c.nodeOrder))
	for _, id := range c.nodeOrder {
		nodes = append(nodes, c.Nodes[id])
	}
	return nodes
}

// EdgeList returns the edges in declaration order.
func (c *WorkflowConfig) EdgeList() []*EdgeData {
	edges := make([]*EdgeData, 0, len(c.edgeOrder))
	for _, id := range c.edgeOrder {
		edges = append(edges, c.Edges[id])
	}
	return edges
}

// StartNode returns the START node data, or nil for an (invalid) config
// without one.
func (c *WorkflowConfig) StartNode() *StartNodeData {
	for _, id := range c.nodeOrder {
		if start, ok := c.Nodes[id].(*StartNodeData); ok {
			return start
		}
	}
	return nil
}

// NewWorkflowConfig validates and builds a workflow config for publishing
// or running. Any malformed node, edge, or graph property fails the whole
// construction.
func NewWorkflowConfig(accountID uuid.UUID, name, description string, rawNodes, rawEdges []json.RawMessage) (*WorkflowConfig, error) {
	if err := validateBasicInfo(name, description); err != nil {
		return nil, err
	}

	nodes, nodeOrder, err := validateNodes(rawNodes)
	if err != nil {
		return nil, err
	}
	edges, edgeOrder, err := validateEdges(rawEdges, nodes)
	if err != nil {
		return nil, err
	}
	if err := validateGraphStructure(nodes, edges); err != nil {
		return nil, err
	}

	return &WorkflowConfig{
		AccountID:   accountID,
		Name:        name,
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
		nodeOrder:   nodeOrder,
		edgeOrder:   edgeOrder,
	}, nil
}

// NewDraftWorkflowConfig builds a lenient config for draft editing: bad
// nodes and edges are dropped and logged instead of aborting, and the
// graph-structure checks are skipped because the user is still drawing.
// A draft config must pass NewWorkflowConfig before it may run.
func NewDraftWorkflowConfig(accountID uuid.UUID, name, description string, rawNodes, rawEdges []json.RawMessage, logger *zap.Logger) *WorkflowConfig {
	if logger == nil {
		logger = zap.NewNop()
	}

	nodes := make(map[uuid.UUID]NodeData)
	nodeOrder := make([]uuid.UUID, 0, len(rawNodes))
	titles := make(map[string]struct{})
	for _, raw := range rawNodes {
		data, err := ParseNodeData(raw)
		if err != nil {
			logger.Warn("dropping invalid draft node", zap.Error(err))
			continue
		}
		if _, dup := nodes[data.Base().ID]; dup {
			logger.Warn("dropping duplicate draft node id", zap.String("node_id", data.Base().ID.String()))
			continue
		}
		if _, dup := titles[trimmedTitle(data)]; dup {
			logger.Warn("dropping duplicate draft node title", zap.String("title", data.Base().Title))
			continue
		}
		nodes[data.Base().ID] = data
		nodeOrder = append(nodeOrder, data.Base().ID)
		titles[trimmedTitle(data)] = struct{}{}
	}

	edges := make(map[uuid.UUID]*EdgeData)
	edgeOrder := make([]uuid.UUID, 0, len(rawEdges))
	for _, raw := range rawEdges {
		edge, err := ParseEdgeData(raw)
		if err != nil {
			logger.Warn("dropping invalid draft edge", zap.Error(err))
			continue
		}
		if err := checkEdge(edge, edges, nodes); err != nil {
			logger.Warn("dropping draft edge", zap.String("edge_id", edge.ID.String()), zap.Error(err))
			continue
		}
		edges[edge.ID] = edge
		edgeOrder = append(edgeOrder, edge.ID)
	}

	return &WorkflowConfig{
		AccountID:   accountID,
		Name:        name,
		Description: description,
		Nodes:       nodes,
		Edges:       edges,
		nodeOrder:   nodeOrder,
		edgeOrder:   edgeOrder,
	}
}

func validateBasicInfo(name, description string) error {
	if !workflowNamePattern.MatchString(name) {
		return types.NewValidateError("工作流名字仅支持字母、数字和下划线，且以字母/下划线为开头")
	}
	if description == "" || len([]rune(description)) > workflowDescriptionMaxLength {
		return types.NewValidateError("工作流描述信息长度不能超过1024个字符")
	}
	return nil
}

func validateNodes(rawNodes []json.RawMessage) (map[uuid.UUID]NodeData, []uuid.UUID, error) {
	if len(rawNodes) == 0 {
		return nil, nil, types.NewValidateError("工作流节点列表信息错误，请核实后重试")
	}

	nodes := make(map[uuid.UUID]NodeData, len(rawNodes))
	order := make([]uuid.UUID, 0, len(rawNodes))
	titles := make(map[string]struct{}, len(rawNodes))
	startCount, endCount := 0, 0

	for _, raw := range rawNodes {
		data, err := ParseNodeData(raw)
		if err != nil {
			return nil, nil, err
		}
		switch data.Type() {
		case NodeStart:
			if startCount >= 1 {
				return nil, nil, types.NewValidateError("工作流中只允许有1个开始节点")
			}
			startCount++
		case NodeEnd:
			if endCount >= 1 {
				return nil, nil, types.NewValidateError("工作流中只允许有1个结束节点")
			}
			endCount++
		}
		if _, dup := nodes[data.Base().ID]; dup {
			return nil, nil, types.NewValidateError("工作流节点id必须唯一，请核实后重试")
		}
		if _, dup := titles[trimmedTitle(data)]; dup {
			return nil, nil, types.NewValidateError("工作流节点title必须唯一，请核实后重试")
		}
		nodes[data.Base().ID] = data
		order = append(order, data.Base().ID)
		titles[trimmedTitle(data)] = struct{}{}
	}
	return nodes, order, nil
}

func validateEdges(rawEdges []json.RawMessage, nodes map[uuid.UUID]NodeData) (map[uuid.UUID]*EdgeData, []uuid.UUID, error) {
	if len(rawEdges) == 0 {
		return nil, nil, types.NewValidateError("工作流边列表信息错误，请核实后重试")
	}

	edges := make(map[uuid.UUID]*EdgeData, len(rawEdges))
	order := make([]uuid.UUID, 0, len(rawEdges))
	for _, raw := range rawEdges {
		edge, err := ParseEdgeData(raw)
		if err != nil {
			return nil, nil, err
		}
		if err := checkEdge(edge, edges, nodes); err != nil {
			return nil, nil, err
		}
		edges[edge.ID] = edge
		order = append(order, edge.ID)
	}
	return edges, order, nil
}

// checkEdge validates one edge against already-accepted edges and nodes.
func checkEdge(edge *EdgeData, edges map[uuid.UUID]*EdgeData, nodes map[uuid.UUID]NodeData) error {
	if _, dup := edges[edge.ID]; dup {
		return types.NewValidateError("工作流边数据id必须唯一，请核实后重试")
	}
	source, sourceOK := nodes[edge.Source]
	target, targetOK := nodes[edge.Target]
	if !sourceOK || !targetOK || source.Type() != edge.SourceType || target.Type() != edge.TargetType {
		return types.NewValidateError("工作流边起点/终点对应的节点不存在或类型错误，请核实后重试")
	}
	for _, existing := range edges {
		if existing.sameConnection(edge) {
			return types.NewValidateError("工作流边数据不能重复添加")
		}
	}
	return nil
}

// graphShape collects the adjacency and degree maps used by the structure
// checks and by runtime compilation.
type graphShape struct {
	adjacency map[uuid.UUID][]uuid.UUID
	inDegree  map[uuid.UUID]int
	outDegree map[uuid.UUID]int
}

func buildGraphShape(nodes map[uuid.UUID]NodeData, edges map[uuid.UUID]*EdgeData) *graphShape {
	shape := &graphShape{
		adjacency: make(map[uuid.UUID][]uuid.UUID, len(nodes)),
		inDegree:  make(map[uuid.UUID]int, len(nodes)),
		outDegree: make(map[uuid.UUID]int, len(nodes)),
	}
	for id := range nodes {
		shape.inDegree[id] = 0
		shape.outDegree[id] = 0
	}
	for _, edge := range edges {
		shape.adjacency[edge.Source] = append(shape.adjacency[edge.Source], edge.Target)
		shape.inDegree[edge.Target]++
		shape.outDegree[edge.Source]++
	}
	return shape
}

func validateGraphStructure(nodes map[uuid.UUID]NodeData, edges map[uuid.UUID]*EdgeData) error {
	shape := buildGraphShape(nodes, edges)

	var startNodes, endNodes []NodeData
	for id, data := range nodes {
		if shape.inDegree[id] == 0 {
			startNodes = append(startNodes, data)
		}
		if shape.outDegree[id] == 0 {
			endNodes = append(endNodes, data)
		}
	}
	if len(startNodes) != 1 || len(endNodes) != 1 ||
		startNodes[0].Type() != NodeStart || endNodes[0].Type() != NodeEnd {
		return types.NewValidateError("工作流中有且只有一个开始/结束节点作为图结构的起点和终点")
	}

	if !isConnected(shape, startNodes[0].Base().ID, len(nodes)) {
		return types.WrapError(types.ErrGraphConnect, "工作流中存在不可到达节点，图不联通，请核实后重试", nil)
	}
	if hasCycle(nodes, shape) {
		return types.WrapError(types.ErrGraphCycle, "工作流中存在环路，请核实后重试", nil)
	}
	return nil
}

// isConnected BFS-walks the adjacency from start and checks every node is
// reached.
func isConnected(shape *graphShape, start uuid.UUID, total int) bool {
	visited := map[uuid.UUID]struct{}{start: {}}
	queue := []uuid.UUID{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range shape.adjacency[current] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			queue = append(queue, next)
		}
	}
	return len(visited) == total
}

// hasCycle runs Kahn's algorithm; leftover nodes mean a cycle.
func hasCycle(nodes map[uuid.UUID]NodeData, shape *graphShape) bool {
	inDegree := make(map[uuid.UUID]int, len(shape.inDegree))
	for id, deg := range shape.inDegree {
		inDegree[id] = deg
	}

	var queue []uuid.UUID
	for id := range nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	removed := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		removed++
		for _, next := range shape.adjacency[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return removed != len(nodes)
}
