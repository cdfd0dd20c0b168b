package splitter

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferOwnership(t *testing.T) {
	s, _, rec := deploy(t)
	ctx := context.Background()

	require.NoError(t, s.TransferOwnership(ctx, owner, recipient1))
	assert.Equal(t, recipient1, s.Owner())

	require.Len(t, rec.events, 1)
	assert.Equal(t, OwnershipTransferred{PreviousOwner: owner, NewOwner: recipient1}, rec.events[0])

	// the previous owner lost its rights
	require.ErrorIs(t, s.Pause(ctx, owner), ErrUnauthorized)
	require.NoError(t, s.Pause(ctx, recipient1))
}

func TestTransferOwnership_Unauthorized(t *testing.T) {
	s, _, rec := deploy(t)
	err := s.TransferOwnership(context.Background(), thirdParty, thirdParty)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, owner, s.Owner())
	assert.Empty(t, rec.events)
}

func TestTransferOwnership_ZeroAddressRejected(t *testing.T) {
	s, _, _ := deploy(t)
	err := s.TransferOwnership(context.Background(), owner, common.Address{})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, owner, s.Owner())
}

func TestTransferOwnership_SameOwner(t *testing.T) {
	s, _, rec := deploy(t)
	require.NoError(t, s.TransferOwnership(context.Background(), owner, owner))
	assert.Equal(t, owner, s.Owner())
	assert.Len(t, rec.events, 1)
}

func TestPause_OnlyOwner(t *testing.T) {
	s, _, rec := deploy(t)
	ctx := context.Background()

	require.ErrorIs(t, s.Pause(ctx, recipient1), ErrUnauthorized)
	assert.False(t, s.Paused())
	require.ErrorIs(t, s.Unpause(ctx, recipient1), ErrUnauthorized)
	assert.Empty(t, rec.events)
}

func TestPause_BlocksSplitThenUnpauseResumes(t *testing.T) {
	s, _, rec := deploy(t)
	ctx := context.Background()
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(4)))

	require.NoError(t, s.Pause(ctx, owner))
	assert.True(t, s.Paused())

	err := s.Split(ctx, owner, recipient1, recipient2, u(4))
	require.ErrorIs(t, err, ErrOperationPaused)
	assert.Equal(t, uint64(2), s.Balances(recipient1).Uint64())
	assert.Equal(t, uint64(2), s.Balances(recipient2).Uint64())

	require.NoError(t, s.Unpause(ctx, owner))
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(4)))
	assert.Equal(t, uint64(4), s.Balances(recipient1).Uint64())

	assert.Equal(t, []string{"LogSplit", "Paused", "Unpaused", "LogSplit"}, rec.names())
	assert.Equal(t, Paused{Account: owner}, rec.events[1])
}

func TestPause_Idempotent(t *testing.T) {
	s, _, rec := deploy(t)
	ctx := context.Background()

	require.NoError(t, s.Pause(ctx, owner))
	require.NoError(t, s.Pause(ctx, owner))
	assert.True(t, s.Paused())
	require.NoError(t, s.Unpause(ctx, owner))
	require.NoError(t, s.Unpause(ctx, owner))
	assert.False(t, s.Paused())

	assert.Equal(t, []string{"Paused", "Unpaused"}, rec.names())
}
