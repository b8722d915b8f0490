package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftoolkit/internal/pdferr"
)

func TestAcquireBlocksUntilRelease(t *testing.T) {
	l := New(Options{MaxInflight: 1})
	release, err := l.Acquire(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, l.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // idempotent
	assert.Equal(t, 0, l.InUse())

	release, err = l.Acquire(context.Background(), 0)
	require.NoError(t, err)
	release()
}

func TestAcquireByteBudget(t *testing.T) {
	l := New(Options{MaxInflight: 4, MaxBytes: 100})

	_, err := l.Acquire(context.Background(), 101)
	assert.Equal(t, pdferr.TooLarge, pdferr.KindOf(err))

	r1, err := l.Acquire(context.Background(), 60)
	require.NoError(t, err)
	_, err = l.Acquire(context.Background(), 60)
	assert.Equal(t, pdferr.Busy, pdferr.KindOf(err))
	assert.Equal(t, 1, l.InUse(), "rejected acquire frees its slot")

	r1()
	r2, err := l.Acquire(context.Background(), 60)
	require.NoError(t, err)
	r2()
}

func TestReserveSharesBudgetWithAcquire(t *testing.T) {
	l := New(Options{MaxInflight: 1, MaxBytes: 100})

	release, err := l.Acquire(context.Background(), 40)
	require.NoError(t, err)

	_, err = l.Reserve(101)
	assert.Equal(t, pdferr.TooLarge, pdferr.KindOf(err))

	r1, err := l.Reserve(50)
	require.NoError(t, err)
	assert.Equal(t, 1, l.InUse(), "reserve takes no slot")

	_, err = l.Reserve(20)
	assert.Equal(t, pdferr.Busy, pdferr.KindOf(err))

	r1()
	r1()
	r2, err := l.Reserve(60)
	require.NoError(t, err)
	r2()
	release()
	assert.Equal(t, 0, l.InUse())
}
