package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleAll_WaitsForEveryTask(t *testing.T) {
	var finished atomic.Int32
	tasks := []func(context.Context) (int, error){
		func(ctx context.Context) (int, error) { return 0, errors.New("fast failure") },
		func(ctx context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			finished.Add(1)
			return 2, nil
		},
		func(ctx context.Context) (int, error) {
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
			return 3, nil
		},
	}

	outcomes := SettleAll(context.Background(), tasks)

	require.Len(t, outcomes, 3)
	assert.EqualError(t, outcomes[0].Err, "fast failure")
	assert.Equal(t, 2, outcomes[1].Value)
	assert.Equal(t, 3, outcomes[2].Value)
	assert.Equal(t, int32(2), finished.Load())
}

func TestSettleAll_FailureDoesNotCancelSiblings(t *testing.T) {
	tasks := []func(context.Context) (string, error){
		func(ctx context.Context) (string, error) { return "", errors.New("boom") },
		func(ctx context.Context) (string, error) {
			time.Sleep(10 * time.Millisecond)
			return "ok", ctx.Err()
		},
	}

	outcomes := SettleAll(context.Background(), tasks)

	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, "ok", outcomes[1].Value)
}

func TestSettleAll_RunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Int32
	task := func(ctx context.Context) (int, error) {
		if started.Add(1) == 3 {
			close(release)
		}
		select {
		case <-release:
			return 1, nil
		case <-time.After(time.Second):
			return 0, errors.New("tasks ran sequentially")
		}
	}

	outcomes := SettleAll(context.Background(), []func(context.Context) (int, error){task, task, task})

	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
}

func TestSettleAll_RecoversPanics(t *testing.T) {
	outcomes := SettleAll(context.Background(), []func(context.Context) (int, error){
		func(ctx context.Context) (int, error) { panic("bad shop") },
		func(ctx context.Context) (int, error) { return 7, nil },
	})

	assert.ErrorContains(t, outcomes[0].Err, "bad shop")
	assert.Equal(t, 7, outcomes[1].Value)
}

func TestSettleAll_Empty(t *testing.T) {
	assert.Empty(t, SettleAll[int](context.Background(), nil))
}
