package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/BaSui01/appflow/rag"
	"github.com/BaSui01/appflow/types"
)

// NodeType discriminates the node variants of the workflow graph.
type NodeType string

const (
	NodeStart              NodeType = "start"
	NodeLLM                NodeType = "llm"
	NodeTool               NodeType = "tool"
	NodeCode               NodeType = "code"
	NodeDatasetRetrieval   NodeType = "dataset_retrieval"
	NodeHTTPRequest        NodeType = "http_request"
	NodeTemplateTransform  NodeType = "template_transform"
	NodeQuestionClassifier NodeType = "question_classifier"
	NodeIteration          NodeType = "iteration"
	NodeEnd                NodeType = "end"
)

// Position is a node's editor coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BaseNodeData carries the fields common to every node variant.
type BaseNodeData struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	NodeType    NodeType  `json:"node_type"`
	Description string    `json:"description,omitempty"`
	Position    Position  `json:"position"`
}

// NodeData is the closed tagged union over node variants. Dispatch happens
// through a compile-time switch, never a runtime string-keyed registry.
type NodeData interface {
	Base() *BaseNodeData
	Type() NodeType
}

// NodeStatus is the execution status of a node result.
type NodeStatus string

const (
	StatusRunning   NodeStatus = "running"
	StatusSucceeded NodeStatus = "succeeded"
	StatusFailed    NodeStatus = "failed"
)

// NodeResult is the immutable record of one node execution, appended to
// shared state. It is the only channel through which a later node can see
// an earlier node's output.
type NodeResult struct {
	NodeData NodeData       `json:"node_data"`
	Status   NodeStatus     `json:"status"`
	Inputs   map[string]any `json:"inputs"`
	Outputs  map[string]any `json:"outputs"`
	Error    string         `json:"error,omitempty"`
	Latency  float64        `json:"latency"` // seconds
}

// StartNodeData declares the workflow's entry inputs.
type StartNodeData struct {
	BaseNodeData
	Inputs []VariableEntity `json:"inputs"`
}

func (d *StartNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *StartNodeData) Type() NodeType      { return NodeStart }

// EndNodeData declares the workflow's final outputs.
type EndNodeData struct {
	BaseNodeData
	Outputs []VariableEntity `json:"outputs"`
}

func (d *EndNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *EndNodeData) Type() NodeType      { return NodeEnd }

// LLMNodeData renders a prompt template and invokes the configured model.
type LLMNodeData struct {
	BaseNodeData
	Prompt      string           `json:"prompt"`
	ModelConfig ModelNodeConfig  `json:"model_config"`
	Inputs      []VariableEntity `json:"inputs"`
	Outputs     []VariableEntity `json:"outputs,omitempty"`
}

func (d *LLMNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *LLMNodeData) Type() NodeType      { return NodeLLM }

// ModelNodeConfig is the stored model selection on LLM-backed nodes.
type ModelNodeConfig struct {
	Model      string         `json:"model"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ToolType discriminates builtin tools from user-registered API tools.
type ToolType string

const (
	ToolBuiltin ToolType = "builtin_tool"
	ToolAPI     ToolType = "api_tool"
)

// ToolNodeData dispatches to a builtin or API tool.
type ToolNodeData struct {
	BaseNodeData
	ToolType   ToolType         `json:"tool_type"`
	ProviderID string           `json:"provider_id"`
	ToolID     string           `json:"tool_id"`
	Params     map[string]any   `json:"params,omitempty"`
	Inputs     []VariableEntity `json:"inputs"`
	Outputs    []VariableEntity `json:"outputs,omitempty"`
}

func (d *ToolNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *ToolNodeData) Type() NodeType      { return NodeTool }

// CodeNodeData runs user code in the out-of-process function runner.
// The code must define a function named main taking exactly one parameter.
type CodeNodeData struct {
	BaseNodeData
	Code    string           `json:"code"`
	Inputs  []VariableEntity `json:"inputs"`
	Outputs []VariableEntity `json:"outputs"`
}

func (d *CodeNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *CodeNodeData) Type() NodeType      { return NodeCode }

// HTTPMethod is the request method of an http_request node.
type HTTPMethod string

const (
	MethodGet     HTTPMethod = "get"
	MethodPost    HTTPMethod = "post"
	MethodPut     HTTPMethod = "put"
	MethodPatch   HTTPMethod = "patch"
	MethodDelete  HTTPMethod = "delete"
	MethodHead    HTTPMethod = "head"
	MethodOptions HTTPMethod = "options"
)

// HTTPRequestNodeData issues an HTTP request built from placement-tagged
// inputs (meta["type"] one of params/headers/body).
type HTTPRequestNodeData struct {
	BaseNodeData
	URL     string           `json:"url"`
	Method  HTTPMethod       `json:"method"`
	Inputs  []VariableEntity `json:"inputs"`
	Outputs []VariableEntity `json:"outputs,omitempty"`
}

func (d *HTTPRequestNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *HTTPRequestNodeData) Type() NodeType      { return NodeHTTPRequest }

// HTTPInputPlacement values accepted in an http_request input's meta.
const (
	HTTPInputParams  = "params"
	HTTPInputHeaders = "headers"
	HTTPInputBody    = "body"
)

// TemplateTransformNodeData renders a template against resolved inputs.
type TemplateTransformNodeData struct {
	BaseNodeData
	Template string           `json:"template"`
	Inputs   []VariableEntity `json:"inputs"`
	Outputs  []VariableEntity `json:"outputs,omitempty"`
}

func (d *TemplateTransformNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *TemplateTransformNodeData) Type() NodeType      { return NodeTemplateTransform }

// DatasetRetrievalNodeData delegates to the retrieval capability.
type DatasetRetrievalNodeData struct {
	BaseNodeData
	DatasetIDs      []uuid.UUID         `json:"dataset_ids"`
	RetrievalConfig rag.RetrievalConfig `json:"retrieval_config"`
	Inputs          []VariableEntity    `json:"inputs"`
	Outputs         []VariableEntity    `json:"outputs,omitempty"`
}

func (d *DatasetRetrievalNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *DatasetRetrievalNodeData) Type() NodeType      { return NodeDatasetRetrieval }

// ClassConfig is one branch of a question classifier: the example query and
// the outgoing source handle the branch routes through.
type ClassConfig struct {
	Query          string    `json:"query"`
	SourceHandleID uuid.UUID `json:"source_handle_id"`
}

// QuestionClassifierNodeData routes execution down one of several branches
// based on a forced-classification model call.
type QuestionClassifierNodeData struct {
	BaseNodeData
	Classes []ClassConfig    `json:"classes"`
	Inputs  []VariableEntity `json:"inputs"`
}

func (d *QuestionClassifierNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *QuestionClassifierNodeData) Type() NodeType      { return NodeQuestionClassifier }

// IterationNodeData re-invokes a separately compiled published workflow for
// every element of a list-typed input.
type IterationNodeData struct {
	BaseNodeData
	WorkflowIDs []uuid.UUID      `json:"workflow_ids"`
	Inputs      []VariableEntity `json:"inputs"`
	Outputs     []VariableEntity `json:"outputs,omitempty"`
}

func (d *IterationNodeData) Base() *BaseNodeData { return &d.BaseNodeData }
func (d *IterationNodeData) Type() NodeType      { return NodeIteration }

// ParseNodeData decodes a raw node into its typed variant by node_type tag
// and applies the variant's defaults and validations.
func ParseNodeData(raw json.RawMessage) (NodeData, error) {
	var probe struct {
		NodeType NodeType `json:"node_type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, types.WrapError(types.ErrValidate, "工作流节点数据类型出错，请核实后重试", err)
	}

	var (
		data NodeData
		err  error
	)
	switch probe.NodeType {
	case NodeStart:
		data, err = decodeNode(raw, &StartNodeData{})
	case NodeEnd:
		data, err = decodeNode(raw, &EndNodeData{})
	case NodeLLM:
		data, err = decodeNode(raw, &LLMNodeData{})
	case NodeTool:
		data, err = decodeNode(raw, &ToolNodeData{})
	case NodeCode:
		data, err = decodeNode(raw, &CodeNodeData{})
	case NodeHTTPRequest:
		data, err = decodeNode(raw, &HTTPRequestNodeData{})
	case NodeTemplateTransform:
		data, err = decodeNode(raw, &TemplateTransformNodeData{})
	case NodeDatasetRetrieval:
		data, err = decodeNode(raw, &DatasetRetrievalNodeData{})
	case NodeQuestionClassifier:
		data, err = decodeNode(raw, &QuestionClassifierNodeData{})
	case NodeIteration:
		data, err = decodeNode(raw, &IterationNodeData{})
	default:
		return nil, types.NewValidateError("工作流节点类型出错，请核实后重试")
	}
	if err != nil {
		return nil, err
	}
	if err := applyNodeDefaults(data); err != nil {
		return nil, err
	}
	return data, nil
}

func decodeNode[T NodeData](raw json.RawMessage, out T) (NodeData, error) {
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, types.WrapError(types.ErrValidate, "工作流节点数据类型出错，请核实后重试", err)
	}
	return out, nil
}

// applyNodeDefaults fills in each variant's generated outputs and enforces
// the variant-local validations.
func applyNodeDefaults(data NodeData) error {
	switch d := data.(type) {
	case *LLMNodeData:
		if len(d.Outputs) == 0 {
			d.Outputs = []VariableEntity{{Name: "output", Type: VarTypeString, Value: GeneratedValue()}}
		}
	case *ToolNodeData:
		if len(d.Outputs) == 0 {
			d.Outputs = []VariableEntity{{Name: "text", Type: VarTypeString, Value: GeneratedValue()}}
		}
	case *TemplateTransformNodeData:
		d.Outputs = []VariableEntity{{Name: "output", Type: VarTypeString, Value: GeneratedValue()}}
	case *HTTPRequestNodeData:
		d.Outputs = []VariableEntity{
			{Name: "status_code", Type: VarTypeInt, Value: GeneratedValue()},
			{Name: "text", Type: VarTypeString, Value: GeneratedValue()},
		}
	case *DatasetRetrievalNodeData:
		if len(d.Outputs) == 0 {
			d.Outputs = []VariableEntity{{Name: "combine_documents", Type: VarTypeString, Value: GeneratedValue()}}
		}
	case *IterationNodeData:
		if err := validateIterationNode(d); err != nil {
			return err
		}
		// The outputs list collects one JSON-serialized sub-run per element.
		d.Outputs = []VariableEntity{{Name: "outputs", Type: VarTypeListString, Value: GeneratedValue()}}
	}
	return nil
}

func validateIterationNode(d *IterationNodeData) error {
	if len(d.WorkflowIDs) > 1 {
		return types.NewValidateError("迭代节点只能绑定一个工作流")
	}
	if len(d.Inputs) != 1 {
		return types.NewValidateError("迭代节点输入变量信息错误")
	}
	input := d.Inputs[0]
	if input.Name != "inputs" || !input.Type.IsList() || !input.Required {
		return types.NewValidateError("迭代节点输入变量名字/类型/必填属性出错")
	}
	return nil
}

// NodeFlag is the executor key "{type}_{id}" used by the runtime and by
// question-classifier branch vocabulary.
func NodeFlag(data NodeData) string {
	return fmt.Sprintf("%s_%s", data.Type(), data.Base().ID)
}

func trimmedTitle(data NodeData) string {
	return strings.TrimSpace(data.Base().Title)
}
