package service

import "fmt"

// ValidationError 表示调用方输入不合法：畸形的活动令牌、非工作日日期、
// 非法的目标或模板参数等。总是可恢复，携带具体的违规输入供直接回显，
// 不会被自动重试。
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Input == "" {
		return e.Reason
	}
	return fmt.Sprintf("%q - %s", e.Input, e.Reason)
}

func validationf(input, format string, args ...any) *ValidationError {
	return &ValidationError{Input: input, Reason: fmt.Sprintf(format, args...)}
}
