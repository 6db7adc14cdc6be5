package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/infra/memory"
)

func TestLedger_HoldReleaseTransfer(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()
	require.NoError(t, l.Credit(ctx, "alice", 100))

	_, err := l.Hold(ctx, "alice", 150)
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)

	h1, err := l.Hold(ctx, "alice", 40)
	require.NoError(t, err)
	h2, err := l.Hold(ctx, "alice", 40)
	require.NoError(t, err)

	bal, _ := l.Balance(ctx, "alice")
	assert.EqualValues(t, 20, bal)
	assert.EqualValues(t, 80, l.Held("alice"))

	require.NoError(t, l.Release(ctx, h1))
	assert.ErrorIs(t, l.Release(ctx, h1), escrow.ErrHoldClosed)

	require.NoError(t, l.Transfer(ctx, h2, "bob"))
	assert.ErrorIs(t, l.Transfer(ctx, h2, "bob"), escrow.ErrHoldClosed)
	assert.ErrorIs(t, l.Release(ctx, "missing"), escrow.ErrHoldNotFound)

	alice, _ := l.Balance(ctx, "alice")
	bob, _ := l.Balance(ctx, "bob")
	assert.EqualValues(t, 60, alice)
	assert.EqualValues(t, 40, bob)
	assert.Zero(t, l.Held("alice"))
}

func TestLedger_RejectsNegativeAmounts(t *testing.T) {
	ctx := context.Background()
	l := memory.NewLedger()

	assert.ErrorIs(t, l.Credit(ctx, "alice", -1), escrow.ErrInvalidAmount)
	_, err := l.Hold(ctx, "alice", -1)
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
}
