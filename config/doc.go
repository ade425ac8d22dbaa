// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package config 提供 AppFlow 的统一配置加载。
// 配置优先级为 默认值 → YAML 文件 → 环境变量，并附带按配置构造
// zap 日志器的辅助函数。
package config
