package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/appflow/internal/metrics"
	"github.com/BaSui01/appflow/llm"
	"github.com/BaSui01/appflow/rag"
	"github.com/BaSui01/appflow/tools"
	"github.com/BaSui01/appflow/types"
)

// ModelFactory builds a model client from a node's stored model config.
type ModelFactory func(config ModelNodeConfig) (llm.Model, error)

// CodeRunner is the out-of-process function runner boundary used by the
// code node. The submitted code must define a function named main taking
// exactly one parameter; the result must be a mapping.
type CodeRunner interface {
	Run(ctx context.Context, code string, params map[string]any) (map[string]any, error)
}

// Loader loads published workflow configs; the iteration node uses it to
// compile its sub-workflow.
type Loader interface {
	LoadPublished(ctx context.Context, id uuid.UUID) (*WorkflowConfig, error)
}

// Deps are the explicit dependencies a runtime needs. No globals: every
// capability the nodes touch arrives here.
type Deps struct {
	ModelFactory ModelFactory
	Tools        *tools.Registry
	Retrieval    rag.RetrieverFactory
	CodeRunner   CodeRunner
	HTTPClient   *http.Client
	Workflows    Loader
	Logger       *zap.Logger
	Metrics      *metrics.Collector
	Tracer       trace.Tracer
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d *Deps) tracer() trace.Tracer {
	if d.Tracer == nil {
		return otel.Tracer("appflow/workflow")
	}
	return d.Tracer
}

// execResult is what one node execution yields: a partial state to merge
// and, for branch nodes, the chosen source handle.
type execResult struct {
	delta  *WorkflowState
	branch *uuid.UUID
}

// executor is the per-node execution contract: state in, partial state out.
type executor interface {
	execute(ctx context.Context, state *WorkflowState) (*execResult, error)
}

// Frame is one streamed unit of progress: the node flag and the partial
// state it produced, in completion order. Err is set only on the final
// frame of a failed run.
type Frame struct {
	NodeID string
	Delta  *WorkflowState
	Err    error
}

// Runtime is a compiled, executable workflow. Compilation resolves every
// node to its executor up front so invocation is pure traversal.
type Runtime struct {
	config    *WorkflowConfig
	deps      Deps
	executors map[uuid.UUID]executor
	startID   uuid.UUID
	logger    *zap.Logger
}

// NewRuntime compiles a validated config into a runnable graph.
func NewRuntime(config *WorkflowConfig, deps Deps) (*Runtime, error) {
	rt := &Runtime{
		config:    config,
		deps:      deps,
		executors: make(map[uuid.UUID]executor, len(config.Nodes)),
		logger:    deps.logger().With(zap.String("component", "workflow_runtime"), zap.String("workflow", config.Name)),
	}

	for _, data := range config.NodeList() {
		exec, err := rt.compileNode(data)
		if err != nil {
			return nil, err
		}
		rt.executors[data.Base().ID] = exec
		if data.Type() == NodeStart {
			rt.startID = data.Base().ID
		}
	}
	if rt.startID == uuid.Nil {
		return nil, types.NewValidateError("工作流缺少开始节点")
	}
	return rt, nil
}

// compileNode is the closed dispatch from node variant to executor.
func (r *Runtime) compileNode(data NodeData) (executor, error) {
	switch d := data.(type) {
	case *StartNodeData:
		return &startExecutor{data: d}, nil
	case *EndNodeData:
		return &endExecutor{data: d}, nil
	case *LLMNodeData:
		return &llmExecutor{data: d, factory: r.deps.ModelFactory}, nil
	case *ToolNodeData:
		return newToolExecutor(d, r.deps)
	case *CodeNodeData:
		return &codeExecutor{data: d, runner: r.deps.CodeRunner}, nil
	case *HTTPRequestNodeData:
		return &httpRequestExecutor{data: d, client: r.deps.HTTPClient}, nil
	case *TemplateTransformNodeData:
		return &templateTransformExecutor{data: d}, nil
	case *DatasetRetrievalNodeData:
		return newDatasetRetrievalExecutor(d, r.config.AccountID, r.deps)
	case *QuestionClassifierNodeData:
		return &questionClassifierExecutor{data: d, factory: r.deps.ModelFactory}, nil
	case *IterationNodeData:
		return newIterationExecutor(d, r.deps), nil
	}
	return nil, types.NewValidateError("工作流节点类型出错，请核实后重试")
}

// Config returns the compiled workflow's config.
func (r *Runtime) Config() *WorkflowConfig { return r.config }

// InputNames lists the START node's declared input names in order.
func (r *Runtime) InputNames() []string {
	start := r.config.StartNode()
	if start == nil {
		return nil
	}
	names := make([]string, 0, len(start.Inputs))
	for _, input := range start.Inputs {
		names = append(names, input.Name)
	}
	return names
}

// Invoke runs the workflow to completion and returns the final state.
func (r *Runtime) Invoke(ctx context.Context, inputs map[string]any) (*WorkflowState, error) {
	state := NewWorkflowState(inputs)
	err := r.run(ctx, state, nil)
	return state, err
}

// Stream runs the workflow on the calling goroutine's behalf and yields
// one frame per completed node, in completion order. The channel is closed
// when the run ends; a failed run delivers the error on the final frame.
func (r *Runtime) Stream(ctx context.Context, inputs map[string]any) <-chan Frame {
	frames := make(chan Frame)
	go func() {
		defer close(frames)
		state := NewWorkflowState(inputs)
		err := r.run(ctx, state, func(nodeID string, delta *WorkflowState) {
			select {
			case frames <- Frame{NodeID: nodeID, Delta: delta}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			select {
			case frames <- Frame{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return frames
}

// edgeResolution tracks whether an edge fired (its source completed and
// selected it) or went dead (source skipped or branch not taken).
type edgeResolution int

const (
	edgePending edgeResolution = iota
	edgeFired
	edgeDead
)

// run drives traversal: a node executes once all of its incoming edges are
// resolved and at least one fired; a node whose incoming edges all went
// dead is skipped and its outgoing edges die too. Execution is sequential;
// parallel branches interleave by readiness, not by goroutines.
func (r *Runtime) run(ctx context.Context, state *WorkflowState, onFrame func(nodeID string, delta *WorkflowState)) error {
	ctx, span := r.deps.tracer().Start(ctx, "workflow.invoke",
		trace.WithAttributes(attribute.String("workflow.name", r.config.Name)))
	defer span.End()

	incoming := make(map[uuid.UUID][]*EdgeData, len(r.config.Nodes))
	outgoing := make(map[uuid.UUID][]*EdgeData, len(r.config.Nodes))
	for _, edge := range r.config.EdgeList() {
		incoming[edge.Target] = append(incoming[edge.Target], edge)
		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
	}

	resolution := make(map[uuid.UUID]edgeResolution, len(r.config.Edges))
	executed := make(map[uuid.UUID]bool, len(r.config.Nodes))
	skipped := make(map[uuid.UUID]bool, len(r.config.Nodes))

	queue := []uuid.UUID{r.startID}

	// resolveTargets re-examines the targets of freshly resolved edges.
	// Declared ahead of the literal so the skip cascade can recurse.
	var resolveTargets func(edges []*EdgeData)
	resolveTargets = func(edges []*EdgeData) {
		for _, edge := range edges {
			target := edge.Target
			if executed[target] || skipped[target] {
				continue
			}
			fired, pending := 0, 0
			for _, in := range incoming[target] {
				switch resolution[in.ID] {
				case edgePending:
					pending++
				case edgeFired:
					fired++
				}
			}
			if pending > 0 {
				continue
			}
			if fired > 0 {
				queue = append(queue, target)
				continue
			}
			// All incoming edges dead: skip and cascade.
			skipped[target] = true
			for _, out := range outgoing[target] {
				resolution[out.ID] = edgeDead
			}
			r.logger.Debug("node skipped", zap.String("node", NodeFlag(r.config.Nodes[target])))
			resolveTargets(outgoing[target])
		}
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		nodeID := queue[0]
		queue = queue[1:]
		if executed[nodeID] || skipped[nodeID] {
			continue
		}
		executed[nodeID] = true

		data := r.config.Nodes[nodeID]
		flag := NodeFlag(data)
		exec := r.executors[nodeID]

		nodeCtx, nodeSpan := r.deps.tracer().Start(ctx, "workflow.node",
			trace.WithAttributes(
				attribute.String("node.type", string(data.Type())),
				attribute.String("node.id", nodeID.String()),
			))
		startAt := time.Now()
		result, err := exec.execute(nodeCtx, state)
		latency := time.Since(startAt)
		nodeSpan.End()

		if r.deps.Metrics != nil {
			status := string(StatusSucceeded)
			if err != nil {
				status = string(StatusFailed)
			}
			r.deps.Metrics.ObserveNode(string(data.Type()), status, latency.Seconds())
		}

		if err != nil {
			failed := resultDelta(&NodeResult{
				NodeData: data,
				Status:   StatusFailed,
				Inputs:   map[string]any{},
				Outputs:  map[string]any{},
				Error:    err.Error(),
				Latency:  latency.Seconds(),
			})
			*state = *MergeState(state, failed)
			if onFrame != nil {
				onFrame(flag, failed)
			}
			r.logger.Error("node execution failed", zap.String("node", flag), zap.Error(err))
			return types.WrapError(types.ErrNodeExecution, fmt.Sprintf("节点 %s 执行失败", data.Base().Title), err)
		}

		*state = *MergeState(state, result.delta)
		if onFrame != nil {
			onFrame(flag, result.delta)
		}
		r.logger.Debug("node completed", zap.String("node", flag), zap.Duration("latency", latency))

		// Resolve outgoing edges. A branch choice (question classifier)
		// fires only the matching handle; everything else fires all edges.
		for _, edge := range outgoing[nodeID] {
			if result.branch != nil && (edge.SourceHandleID == nil || *edge.SourceHandleID != *result.branch) {
				resolution[edge.ID] = edgeDead
				continue
			}
			resolution[edge.ID] = edgeFired
		}
		resolveTargets(outgoing[nodeID])
	}
	return nil
}

// AsTool exposes the compiled workflow as an agent tool. The args schema
// derives from the START node's declared inputs; invoking the tool runs
// the workflow and returns its final outputs.
func (r *Runtime) AsTool() tools.Tool {
	return tools.NewFuncTool(
		r.config.Name,
		r.config.Description,
		r.argsSchema(),
		func(ctx context.Context, args map[string]any) (any, error) {
			state, err := r.Invoke(ctx, args)
			if err != nil {
				return nil, err
			}
			return state.Outputs, nil
		},
	)
}

func (r *Runtime) argsSchema() json.RawMessage {
	start := r.config.StartNode()
	properties := map[string]any{}
	required := []string{}
	if start != nil {
		for _, input := range start.Inputs {
			properties[input.Name] = map[string]any{
				"type":        jsonSchemaType(input.Type),
				"description": input.Description,
			}
			if input.Required {
				required = append(required, input.Name)
			}
		}
	}
	schema := map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return raw
}

func jsonSchemaType(t VariableType) string {
	switch t {
	case VarTypeInt, VarTypeFloat:
		return "number"
	case VarTypeBool:
		return "boolean"
	case VarTypeListString, VarTypeListInt, VarTypeListFloat, VarTypeListBool:
		return "array"
	}
	return "string"
}
