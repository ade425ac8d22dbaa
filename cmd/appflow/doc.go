// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// appflow 命令是应用编排后端的服务入口。
package main
