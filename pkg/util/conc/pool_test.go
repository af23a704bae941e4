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

package conc

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

func TestPool(t *testing.T) {
	pool := NewDefaultPool[any]()
	defer pool.Release()

	taskNum := pool.Cap() * 2
	futures := make([]*Future[any], 0, taskNum)
	for i := 0; i < taskNum; i++ {
		res := i
		future := pool.Submit(func() (any, error) {
			time.Sleep(10 * time.Millisecond)
			return res, nil
		})
		futures = append(futures, future)
	}

	assert.Greater(t, pool.Running(), 0)
	require.NoError(t, AwaitAll(futures...))
	for i, future := range futures {
		res, err := future.Await()
		assert.NoError(t, err)
		assert.Equal(t, i, res.(int))
		assert.True(t, future.Done())
	}
}

func TestPoolError(t *testing.T) {
	pool := NewPool[int](2)
	defer pool.Release()

	boom := errors.New("boom")
	ok := pool.Submit(func() (int, error) { return 1, nil })
	bad := pool.Submit(func() (int, error) { return 0, boom })

	assert.ErrorIs(t, AwaitAll(ok, bad), boom)
	assert.Equal(t, 1, ok.Value())
	assert.False(t, bad.OK())
}

func TestPoolNonBlockingOverload(t *testing.T) {
	pool := NewPool[int](1, WithNonBlocking(true), WithName("overload"))
	defer pool.Release()

	release := make(chan struct{})
	first := pool.Submit(func() (int, error) {
		<-release
		return 1, nil
	})
	second := pool.Submit(func() (int, error) { return 2, nil })

	assert.ErrorIs(t, second.Err(), merr.ErrServiceTooManyRequests)
	close(release)
	assert.True(t, first.OK())
}

func TestPoolPreHandlerAndConcealPanic(t *testing.T) {
	var preCalled atomic.Int32
	var panics atomic.Int32
	pool := NewPool[int](1,
		WithPreHandler(func() { preCalled.Inc() }),
		WithConcealPanic(true),
		WithPanicHandler(func(any) { panics.Inc() }),
	)
	defer pool.Release()

	future := pool.Submit(func() (int, error) {
		panic("bad task")
	})
	assert.Error(t, future.Err())
	assert.EqualValues(t, 1, preCalled.Load())
	assert.Eventually(t, func() bool { return panics.Load() == 1 }, time.Second, 10*time.Millisecond)

	// 吞掉 panic 后协程池仍然可用。
	assert.Equal(t, 3, pool.Submit(func() (int, error) { return 3, nil }).Value())
}

func TestGo(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	future := Go(func() (string, error) {
		wg.Wait()
		return "done", nil
	})
	assert.False(t, future.Done())
	wg.Done()

	select {
	case <-future.Inner():
	case <-time.After(time.Second):
		t.Fatal("future not completed")
	}
	assert.Equal(t, "done", future.Value())
}

func TestPoolWorkerExpiry(t *testing.T) {
	pool := NewPool[int](4, WithName("expiry"), WithExpiryDuration(20*time.Millisecond))
	defer pool.Release()

	_, err := pool.Submit(func() (int, error) { return 1, nil }).Await()
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return pool.Running() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestPoolDisablePurgeKeepsWorkers(t *testing.T) {
	pool := NewPool[int](4, WithDisablePurge(true), WithExpiryDuration(20*time.Millisecond))
	defer pool.Release()

	_, err := pool.Submit(func() (int, error) { return 1, nil }).Await()
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, pool.Running())
}

func TestPoolPreAlloc(t *testing.T) {
	pool := NewPool[int](3, WithPreAlloc(true), WithNonBlocking(true))
	defer pool.Release()

	assert.Equal(t, 3, pool.Cap())
	res, err := pool.Submit(func() (int, error) { return 42, nil }).Await()
	require.NoError(t, err)
	assert.Equal(t, 42, res)
}
