// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package handlers 实现 HTTP 接口层。
// 会话接口以 SSE 推送智能体事件流，工作流接口覆盖草稿保存、发布与
// 运行。错误统一经 types.Error 的错误码映射为 HTTP 状态码。
package handlers
