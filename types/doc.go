// Copyright 2025-2026 AppFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package types 定义全局错误码与带码错误类型。

Error 携带稳定的错误码、面向用户的消息与底层原因；HTTP 层按
CodeOf 的结果映射状态码，校验类错误统一经 NewValidateError 构造。
*/
package types
