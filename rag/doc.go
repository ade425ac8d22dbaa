// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package rag 定义知识库检索边界。

Retriever 是数据集检索节点与智能体检索工具共同面向的接口；
RetrieverFactory 按账号与检索配置构建具体实现。检索系统本身
（向量库、召回策略、重排序）在进程外实现并注入。
*/
package rag
