package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 内置插件：与外部服务无关、进程内即可完成的工具。

// NewCurrentTimeTool returns the builtin current_time tool.
func NewCurrentTimeTool() Tool {
	schema := json.RawMessage(`{"type":"object","properties":{"timezone":{"type":"string","description":"IANA timezone name, defaults to UTC"}}}`)
	return NewFuncTool(
		"current_time",
		"获取当前时间，可指定时区",
		schema,
		func(_ context.Context, args map[string]any) (any, error) {
			loc := time.UTC
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				parsed, err := time.LoadLocation(tz)
				if err != nil {
					return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
				}
				loc = parsed
			}
			return time.Now().In(loc).Format(time.RFC3339), nil
		},
	)
}

// NewCalculatorTool returns the builtin calculator tool. It evaluates a
// binary arithmetic expression of the form "<a> <op> <b>".
func NewCalculatorTool() Tool {
	schema := json.RawMessage(`{"type":"object","properties":{"expression":{"type":"string","description":"binary expression, e.g. \"3 * 4\""}},"required":["expression"]}`)
	return NewFuncTool(
		"calculator",
		"计算简单的二元算术表达式",
		schema,
		func(_ context.Context, args map[string]any) (any, error) {
			expr, _ := args["expression"].(string)
			fields := strings.Fields(expr)
			if len(fields) != 3 {
				return nil, fmt.Errorf("expression must be \"<a> <op> <b>\", got %q", expr)
			}
			a, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return nil, fmt.Errorf("bad operand %q: %w", fields[0], err)
			}
			b, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("bad operand %q: %w", fields[2], err)
			}
			switch fields[1] {
			case "+":
				return a + b, nil
			case "-":
				return a - b, nil
			case "*":
				return a * b, nil
			case "/":
				if b == 0 {
					return nil, fmt.Errorf("division by zero")
				}
				return a / b, nil
			}
			return nil, fmt.Errorf("unsupported operator %q", fields[1])
		},
	)
}

// RegisterBuiltins 将所有内置插件注册到 registry 的 builtin 提供者下。
func RegisterBuiltins(r *Registry) {
	r.Register("builtin", "current_time", NewCurrentTimeTool())
	r.Register("builtin", "calculator", NewCalculatorTool())
}
