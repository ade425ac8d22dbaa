// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package tools 提供智能体与工作流共用的工具调用边界。

# 核心接口/类型

  - Tool — 工具调用接口（Name / Description / ArgsSchema / Invoke）
  - Registry — 以 "提供者id/工具id" 为键的工具注册表
  - FuncTool — 将普通函数适配为工具，也用于把已编译的工作流暴露为工具
  - APITool / APIToolEntity — 声明式 API 插件，按 path / query /
    header / cookie / request_body 位置声明拼装 HTTP 请求

# 主要能力

  - 内置插件：current_time、calculator，经 RegisterBuiltins 注册
  - API 插件：URL 模板路径占位符替换、JSON 请求体、默认头部合并、
    x/time/rate 出站限流
  - Schema 渲染：供模型绑定的 JSON Schema 与 ReAct 提示词文本描述
*/
package tools
