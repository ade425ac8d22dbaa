package workflow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/BaSui01/appflow/types"
)

// VariableType is the declared type of a workflow variable.
type VariableType string

const (
	VarTypeString     VariableType = "string"
	VarTypeInt        VariableType = "int"
	VarTypeFloat      VariableType = "float"
	VarTypeBool       VariableType = "boolean"
	VarTypeListString VariableType = "list[string]"
	VarTypeListInt    VariableType = "list[int]"
	VarTypeListFloat  VariableType = "list[float]"
	VarTypeListBool   VariableType = "list[boolean]"
)

// IsList reports whether the type is one of the list variants.
func (t VariableType) IsList() bool {
	switch t {
	case VarTypeListString, VarTypeListInt, VarTypeListFloat, VarTypeListBool:
		return true
	}
	return false
}

// ZeroValue returns the documented zero value for the type. Best-effort
// variable resolution falls back to it when a reference cannot be
// satisfied; this is intentional policy, not an error path.
func (t VariableType) ZeroValue() any {
	switch t {
	case VarTypeString:
		return ""
	case VarTypeInt:
		return int64(0)
	case VarTypeFloat:
		return float64(0)
	case VarTypeBool:
		return false
	case VarTypeListString, VarTypeListInt, VarTypeListFloat, VarTypeListBool:
		return []any{}
	}
	return ""
}

// VariableValueType discriminates how a variable obtains its value.
type VariableValueType string

const (
	// ValueLiteral carries the value inline.
	ValueLiteral VariableValueType = "literal"
	// ValueRef points at another node's recorded output.
	ValueRef VariableValueType = "ref"
	// ValueGenerated marks an output produced by the node itself.
	ValueGenerated VariableValueType = "generated"
)

// VariableRef identifies another node's output variable.
type VariableRef struct {
	RefNodeID  uuid.UUID `json:"ref_node_id"`
	RefVarName string    `json:"ref_var_name"`
}

// VariableValue is the tagged value of a VariableEntity: a literal, a
// reference, or generated.
type VariableValue struct {
	Type    VariableValueType `json:"type"`
	Content any               `json:"content,omitempty"`
	Ref     *VariableRef      `json:"-"`
}

// UnmarshalJSON decodes the ref variant's content into a VariableRef and
// keeps literal content as-is.
func (v *VariableValue) UnmarshalJSON(data []byte) error {
	var aux struct {
		Type    VariableValueType `json:"type"`
		Content json.RawMessage   `json:"content"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	v.Type = aux.Type
	v.Content = nil
	v.Ref = nil
	if len(aux.Content) == 0 {
		return nil
	}
	if aux.Type == ValueRef {
		ref := &VariableRef{}
		if err := json.Unmarshal(aux.Content, ref); err != nil {
			return fmt.Errorf("decode variable ref: %w", err)
		}
		v.Ref = ref
		return nil
	}
	return json.Unmarshal(aux.Content, &v.Content)
}

// MarshalJSON restores the ref variant's content shape.
func (v VariableValue) MarshalJSON() ([]byte, error) {
	aux := struct {
		Type    VariableValueType `json:"type"`
		Content any               `json:"content,omitempty"`
	}{Type: v.Type, Content: v.Content}
	if v.Type == ValueRef && v.Ref != nil {
		aux.Content = v.Ref
	}
	return json.Marshal(aux)
}

// LiteralValue builds a literal variable value.
func LiteralValue(content any) VariableValue {
	return VariableValue{Type: ValueLiteral, Content: content}
}

// RefValue builds a reference variable value.
func RefValue(nodeID uuid.UUID, varName string) VariableValue {
	return VariableValue{Type: ValueRef, Ref: &VariableRef{RefNodeID: nodeID, RefVarName: varName}}
}

// GeneratedValue marks a node-generated output variable.
func GeneratedValue() VariableValue {
	return VariableValue{Type: ValueGenerated}
}

// VariableEntity is a typed, named variable declared on a node.
type VariableEntity struct {
	Name        string         `json:"name"`
	Type        VariableType   `json:"type"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required"`
	Value       VariableValue  `json:"value"`
	Meta        map[string]any `json:"meta,omitempty"`
}

// Coerce converts v to the variable type. A failed coercion fails the
// containing node execution, not the resolver.
func Coerce(t VariableType, v any) (any, error) {
	if v == nil {
		return t.ZeroValue(), nil
	}
	switch t {
	case VarTypeString, "":
		return coerceString(v), nil
	case VarTypeInt:
		return coerceInt(v)
	case VarTypeFloat:
		return coerceFloat(v)
	case VarTypeBool:
		return coerceBool(v)
	case VarTypeListString, VarTypeListInt, VarTypeListFloat, VarTypeListBool:
		return coerceList(t, v)
	}
	return nil, types.NewError(types.ErrTypeCoercion, fmt.Sprintf("unknown variable type %q", t))
}

func coerceString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case float32:
		return int64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, types.WrapError(types.ErrTypeCoercion, "coerce int", err)
		}
		return int64(f), nil
	case bool:
		if n {
			return int64(1), nil
		}
		return int64(0), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, types.WrapError(types.ErrTypeCoercion, fmt.Sprintf("coerce %q to int", n), err)
		}
		return parsed, nil
	}
	return nil, types.NewError(types.ErrTypeCoercion, fmt.Sprintf("cannot coerce %T to int", v))
}

func coerceFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, types.WrapError(types.ErrTypeCoercion, "coerce float", err)
		}
		return f, nil
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil, types.WrapError(types.ErrTypeCoercion, fmt.Sprintf("coerce %q to float", n), err)
		}
		return parsed, nil
	}
	return nil, types.NewError(types.ErrTypeCoercion, fmt.Sprintf("cannot coerce %T to float", v))
}

func coerceBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return nil, types.WrapError(types.ErrTypeCoercion, fmt.Sprintf("coerce %q to bool", b), err)
		}
		return parsed, nil
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case int64:
		return b != 0, nil
	}
	return nil, types.NewError(types.ErrTypeCoercion, fmt.Sprintf("cannot coerce %T to bool", v))
}

func coerceList(t VariableType, v any) (any, error) {
	var items []any
	switch list := v.(type) {
	case []any:
		items = list
	case []string:
		items = make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
	default:
		return nil, types.NewError(types.ErrTypeCoercion, fmt.Sprintf("cannot coerce %T to %s", v, t))
	}

	var elem VariableType
	switch t {
	case VarTypeListString:
		elem = VarTypeString
	case VarTypeListInt:
		elem = VarTypeInt
	case VarTypeListFloat:
		elem = VarTypeFloat
	case VarTypeListBool:
		elem = VarTypeBool
	}

	out := make([]any, len(items))
	for i, item := range items {
		coerced, err := Coerce(elem, item)
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

// ExtractVariables resolves the declared variables against the state.
//
// Literal values are coerced to the declared type. References scan the
// recorded node results in append order for the first result produced by
// the referenced node; a missing node or missing output falls back to the
// type's zero value rather than failing — skipped branches are expected.
func ExtractVariables(variables []VariableEntity, state *WorkflowState) (map[string]any, error) {
	resolved := make(map[string]any, len(variables))
	for _, variable := range variables {
		switch variable.Value.Type {
		case ValueLiteral:
			value, err := Coerce(variable.Type, variable.Value.Content)
			if err != nil {
				return nil, err
			}
			resolved[variable.Name] = value
		case ValueRef:
			if variable.Value.Ref == nil {
				resolved[variable.Name] = variable.Type.ZeroValue()
				continue
			}
			found := variable.Type.ZeroValue()
			for _, result := range state.NodeResults {
				if result.NodeData.Base().ID != variable.Value.Ref.RefNodeID {
					continue
				}
				raw, ok := result.Outputs[variable.Value.Ref.RefVarName]
				if !ok {
					raw = variable.Type.ZeroValue()
				}
				value, err := Coerce(variable.Type, raw)
				if err != nil {
					return nil, err
				}
				found = value
				break
			}
			resolved[variable.Name] = found
		}
	}
	return resolved, nil
}
