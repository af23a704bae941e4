// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	// SystemError 对会话是致命的，例如底层连接读写失败。
	SystemError ErrorType = 0
	// InputError 由客户端输入引起，转换为一条回复后会话继续。
	InputError ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Service related
	ErrServiceNotReady        = newChatError("service not ready", 1, true)
	ErrServiceTooManyRequests = newChatError("too many concurrent requests, queue is full", 4, true)
	ErrServiceInternal        = newChatError("service internal error", 5, false)
	ErrServiceRateLimit       = newChatError("rate limit exceeded", 8, true)

	// Username related
	ErrUsernameInvalid = newChatError("invalid username", 100, false, WithErrorType(InputError))
	ErrUsernameTaken   = newChatError("username taken", 101, false, WithErrorType(InputError))

	// Command related
	ErrCommandInvalid = newChatError("invalid command", 200, false, WithErrorType(InputError))

	// Session related
	ErrNotAuthenticated     = newChatError("not authenticated", 300, false, WithErrorType(InputError))
	ErrAlreadyAuthenticated = newChatError("already authenticated", 301, false, WithErrorType(InputError))
	ErrSessionClosed        = newChatError("session closed", 302, false)

	// Routing related
	ErrRecipientNotFound = newChatError("recipient not found", 400, false, WithErrorType(InputError))

	// Transport related
	ErrTransportFailure = newChatError("transport failure", 500, false)
	ErrFrameTooLarge    = newChatError("frame too large", 501, false)

	// IO related
	ErrIoFailed = newChatError("IO failed", 1001, false)

	// Parameter related
	ErrParameterInvalid = newChatError("invalid parameter", 1100, false)
	ErrParameterMissing = newChatError("missing parameter", 1101, false)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to chatError
	errUnexpected = newChatError("unexpected error", (1<<16)-1, false)
)

type errorOption func(*chatError)

func WithDetail(detail string) errorOption {
	return func(err *chatError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *chatError) {
		err.errType = etype
	}
}

type chatError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newChatError(msg string, code int32, retriable bool, options ...errorOption) chatError {
	err := chatError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e chatError) code() int32 {
	return e.errCode
}

func (e chatError) Error() string {
	return e.msg
}

func (e chatError) Detail() string {
	return e.detail
}

func (e chatError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(chatError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多错误的 cause 定义为最后一个错误，使 Code 与 errors.As 作用于它。
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

// Combine 将多个错误合并为一个，nil 会被忽略；错误码取自最后一个错误。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
