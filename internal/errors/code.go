package errors

import (
	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// 账单同步服务错误码定义
// 错误码格式：SSMMEE (6位数字)，其中 SS=14 表示 billing-sync-service
// 模块划分：
//   01: 签名验证模块
//   02: 账户模块
//   03: 支付记录模块
//   04: Webhook 事件模块

// 签名验证模块 (140100-140199)
const (
	// ErrCodeInvalidSignature 签名无效错误
	ErrCodeInvalidSignature = 140101
	// ErrCodeMissingSignature 缺少签名头错误
	ErrCodeMissingSignature = 140102
)

// 账户模块 (140200-140299)
const (
	// ErrCodeAccountNotFound 账户不存在错误
	ErrCodeAccountNotFound = 140201
	// ErrCodeAccountSaveFailed 账户保存失败错误
	ErrCodeAccountSaveFailed = 140202
)

// 支付记录模块 (140300-140399)
const (
	// ErrCodePaymentRecordFailed 支付记录写入失败错误
	ErrCodePaymentRecordFailed = 140301
)

// Webhook 事件模块 (140400-140499)
const (
	// ErrCodeEventRecordFailed 事件记录写入失败错误
	ErrCodeEventRecordFailed = 140401
	// ErrCodeReconcileBusy 对账锁竞争失败错误, 可由提供方重投
	ErrCodeReconcileBusy = 140402
)

var reasons = map[int]string{
	ErrCodeInvalidSignature:    "INVALID_SIGNATURE",
	ErrCodeMissingSignature:    "MISSING_SIGNATURE",
	ErrCodeAccountNotFound:     "ACCOUNT_NOT_FOUND",
	ErrCodeAccountSaveFailed:   "ACCOUNT_SAVE_FAILED",
	ErrCodePaymentRecordFailed: "PAYMENT_RECORD_FAILED",
	ErrCodeEventRecordFailed:   "EVENT_RECORD_FAILED",
	ErrCodeReconcileBusy:       "RECONCILE_BUSY",
}

// New 创建带错误码的业务错误
func New(code int, message string) *kerrors.Error {
	reason, ok := reasons[code]
	if !ok {
		reason = "UNKNOWN"
	}
	return kerrors.New(code, reason, message)
}

// Code 从错误中提取业务错误码, 非业务错误返回 0
func Code(err error) int {
	if err == nil {
		return 0
	}
	se := kerrors.FromError(err)
	if se == nil {
		return 0
	}
	return int(se.Code)
}

// IsCode 判断错误是否携带指定业务错误码
func IsCode(err error, code int) bool {
	return Code(err) == code
}
