// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package api 定义 HTTP 接口层的请求与响应类型。
package api
