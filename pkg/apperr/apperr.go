// Package apperr 定义跨模块共享的错误分类，调用方通过 KindOf 做穷尽分支处理
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind 错误分类
type Kind int

const (
	// KindUnknown 未分类错误
	KindUnknown Kind = iota
	// KindInvalidArgument 调用方参数错误，不应自动重试
	KindInvalidArgument
	// KindNotFound 引用的记录不存在
	KindNotFound
	// KindProductInactive 商品已下架
	KindProductInactive
	// KindProductOutOfStock 商品被标记为缺货
	KindProductOutOfStock
	// KindInsufficientStock 库存不足
	KindInsufficientStock
	// KindInvalidTransition 状态机迁移不合法
	KindInvalidTransition
	// KindInfrastructure 持久化层故障（连接、锁超时等），可由调用方重试
	KindInfrastructure
)

var kindNames = map[Kind]string{
	KindUnknown:           "Unknown",
	KindInvalidArgument:   "InvalidArgument",
	KindNotFound:          "NotFound",
	KindProductInactive:   "ProductInactive",
	KindProductOutOfStock: "ProductOutOfStock",
	KindInsufficientStock: "InsufficientStock",
	KindInvalidTransition: "InvalidTransition",
	KindInfrastructure:    "Infrastructure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error 带分类的错误
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New 创建分类错误
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap 用分类包装底层错误
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同分类且同消息的错误视为相等，使哨兵错误可以配合 errors.Is 使用
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// KindOf 返回错误链上第一个分类；context 超时归为基础设施错误
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindInfrastructure
	}
	return KindUnknown
}

// Is 判断错误是否属于指定分类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable 只有基础设施错误可以自动重试；库存不足交由调用方决定
func IsRetryable(err error) bool {
	return KindOf(err) == KindInfrastructure
}

// Infrastructure 将持久化层错误包装为基础设施错误，已分类的错误原样返回
func Infrastructure(message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Wrap(KindInfrastructure, message, err)
}
