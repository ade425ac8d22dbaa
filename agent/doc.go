// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package agent 实现智能体推理核心与事件队列。

每次会话绑定一个任务 id，推理在独立的工作协程中执行，产生的事件
（推理过程、消息增量、工具动作、检索召回、结束与错误）经 QueueManager
按任务隔离的队列流向消费者。Listen 返回的事件通道内建心跳（10 秒）、
监听超时（600 秒）与外部停止标记轮询，终止类事件自动结束监听。

两种推理策略共享同一套骨架：FunctionCallAgent 依赖模型的原生工具
调用能力；ReActAgent 通过提示词约定模型以 json 代码块表达工具调用，
供不具备该能力的模型使用，且在模型具备原生能力时自动切换。

停止请求跨进程生效：队列创建时在缓存中登记任务归属，SetStopFlag
校验调用方身份一致后写入停止标记，监听循环在下一个轮询周期发布
stop 事件并终止。
*/
package agent
