// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package metrics 提供 Prometheus 指标收集器。Collector 的所有
// 方法对 nil 接收者安全，未启用遥测时调用方无需判空。
package metrics
