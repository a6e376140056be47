package job_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/pkg/job"
)

func TestService(t *testing.T) {
	t.Parallel()

	var (
		purged   atomic.Int32
		failures atomic.Int32
	)

	s := job.NewService().
		RegisterJob("purge", 10*time.Millisecond, func(context.Context) error {
			purged.Add(1)
			return nil
		}).
		RegisterJob("failing", 10*time.Millisecond, func(context.Context) error {
			failures.Add(1)
			return errors.New("boom")
		}).
		RegisterJob("panicking", 10*time.Millisecond, func(context.Context) error {
			panic("boom")
		}).
		RegisterJob("disabled", 0, func(context.Context) error {
			t.Error("disabled job must not run")
			return nil
		})

	require.Equal(t, 3, s.Len())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool {
		return purged.Load() >= 2 && failures.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	s.Stop()
}
