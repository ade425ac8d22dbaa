// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package llm 定义模型调用边界与围绕它的消息、能力、计价类型。

# 核心接口/类型

  - Model — 模型调用接口（Stream / BindTools / Features / GetNumTokens /
    Pricing），智能体循环与工作流 LLM 节点都只面向该接口，
    具体服务商客户端在进程外装配后注入
  - Message / ToolCall — 会话消息与原生工具调用载荷
  - Chunk — 流式增量片段，Gather 将片段聚合为一条助手消息
  - FeatureSet — 模型能力声明（tool_call / agent_thought / image_input），
    决定智能体选择原生工具调用还是 ReAct 策略
  - Pricing — token 计价信息，用于会话的成本统计

# 计数器

  - TiktokenTokenizer — 基于 tiktoken 编码表的精确计数，按模型名
    最长前缀匹配选择编码，惰性初始化
  - EstimatorTokenizer — 区分 CJK 与 ASCII 的字符数估算兜底
*/
package llm
