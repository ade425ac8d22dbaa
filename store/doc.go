// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package store 基于 GORM 实现持久层。

工作流以双画布形态存储：草稿画布随编辑覆盖保存且不做图结构校验，
发布时草稿必须通过严格校验后才快照为已发布图。LoadPublished 是
运行入口与迭代节点共用的加载路径，只认已发布快照。

另存智能体会话的事件轨迹与工作流运行的节点执行历史，供会话回放
与调试面板查询。驱动支持 sqlite、mysql 与 postgres。
*/
package store
