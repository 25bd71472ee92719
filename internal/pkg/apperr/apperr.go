// Package apperr 定义编排层的错误分类。
//
// 调用方通过 KindOf 判断失败种类，而不是匹配错误字符串。
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// Kind 错误种类
type Kind string

const (
	KindInternal  Kind = "internal"
	KindOffline   Kind = "offline"
	KindTimeout   Kind = "timeout"
	KindMalformed Kind = "malformed"
	KindTool      Kind = "tool"
	KindPlan      Kind = "plan"
	KindNotFound  Kind = "not_found"
	KindInvalid   Kind = "invalid"
)

// Error 带种类的错误
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
		if e.Err != nil {
			b.WriteString(": ")
		}
	case e.Err == nil:
		b.WriteString(string(e.Kind))
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, &Error{Kind: k}) 按种类匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// New 构造错误
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// Wrap 包装底层错误
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf 格式化构造
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf 返回错误种类；未分类的上下文超时视为 KindTimeout
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// Is 判断错误是否属于指定种类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify 把网络层错误归类为 offline / timeout，其余保持原样
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(KindTimeout, op, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Wrap(KindOffline, op, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Wrap(KindOffline, op, err)
	}
	return err
}

// HTTPStatus 返回错误种类对应的 HTTP 状态码
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindOffline:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindMalformed, KindTool:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
