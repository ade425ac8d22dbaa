// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package cache 封装 Redis 访问，提供带 TTL 的键值读写。
// 未命中统一以 ErrCacheMiss 表达，调用方经 IsCacheMiss 判定。
package cache
