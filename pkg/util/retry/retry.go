// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 按指数退避重复执行 fn，直到成功、次数耗尽、遇到不可恢复错误或 ctx 结束。
// 返回值为最后一次有意义的错误：因 ctx 结束而退出时，返回 ctx 结束前的那次业务错误。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	logger := log.Ctx(ctx).With(zap.String("caller", getCaller(2)))
	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			logger.Warn("retry func failed", zap.Uint("retried", i), zap.Error(err))
		}

		if reason, stop := c.stopReason(ctx, err); stop {
			logger.Warn("retry func stopped",
				zap.String("reason", reason),
				zap.Uint("retried", i),
				zap.Uint("attempt", c.attempts),
			)
			if merr.IsCanceledOrTimeout(err) && lastErr != nil {
				return lastErr
			}
			return err
		}
		lastErr = err

		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
			logger.Warn("retry func failed, ctx done", zap.Uint("retried", i))
			return lastErr
		}

		c.sleep *= 2
		if c.sleep > c.maxSleepTime {
			c.sleep = c.maxSleepTime
		}
	}

	logger.Warn("retry func failed, reach max retry", zap.Uint("attempt", c.attempts))
	return lastErr
}

// stopReason 判断一次失败后是否应立即停止重试。
func (c *config) stopReason(ctx context.Context, err error) (string, bool) {
	if !IsRecoverable(err) {
		return "unrecoverable", true
	}
	if c.isRetryErr != nil && !c.isRetryErr(err) {
		return "not retryable", true
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.sleep {
		return "deadline", true
	}
	return "", false
}

// errUnrecoverable 表示不可恢复错误的标记实例。
var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 将错误包装为不可恢复错误，使重试逻辑能够快速返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 判断给定错误是否为“可恢复”错误。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
