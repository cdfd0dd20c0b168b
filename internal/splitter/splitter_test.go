package splitter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	recipient1 = common.HexToAddress("0x2000000000000000000000000000000000000002")
	recipient2 = common.HexToAddress("0x3000000000000000000000000000000000000003")
	thirdParty = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

// payouts records successful transfers and can be told to fail.
type payouts struct {
	mu   sync.Mutex
	paid map[common.Address]*uint256.Int
	fail error
	hook func(ctx context.Context, to common.Address)
}

func newPayouts() *payouts {
	return &payouts{paid: make(map[common.Address]*uint256.Int)}
}

func (p *payouts) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if p.hook != nil {
		p.hook(ctx, to)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	cur, ok := p.paid[to]
	if !ok {
		cur = new(uint256.Int)
	}
	p.paid[to] = new(uint256.Int).Add(cur, amount)
	return nil
}

func (p *payouts) total(to common.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.paid[to]; ok {
		return v.Uint64()
	}
	return 0
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, ev := range r.events {
		names[i] = ev.Name()
	}
	return names
}

func deploy(t *testing.T, opts ...Option) (*Splitter, *payouts, *recorder) {
	t.Helper()
	p := newPayouts()
	rec := &recorder{}
	s, err := Deploy(owner, nil, p, append([]Option{WithEmitter(rec)}, opts...)...)
	require.NoError(t, err)
	return s, p, rec
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestDeploy_OwnedByDeployer(t *testing.T) {
	s, _, _ := deploy(t)
	assert.Equal(t, owner, s.Owner())
	assert.False(t, s.Paused())
}

func TestDeploy_RejectsValue(t *testing.T) {
	_, err := Deploy(owner, u(10), newPayouts())
	require.ErrorIs(t, err, ErrNonPayable)
}

func TestDeploy_RejectsZeroDeployer(t *testing.T) {
	_, err := Deploy(common.Address{}, nil, newPayouts())
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDeploy_PreseededPause(t *testing.T) {
	s, _, _ := deploy(t, WithPaused(true))
	assert.True(t, s.Paused())
}

func TestSplit_CreditsBothRecipients(t *testing.T) {
	s, _, rec := deploy(t)
	ctx := context.Background()

	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(4)))

	assert.Equal(t, uint64(2), s.Balances(recipient1).Uint64())
	assert.Equal(t, uint64(2), s.Balances(recipient2).Uint64())
	assert.True(t, s.Balances(thirdParty).IsZero())
	assert.Equal(t, uint64(4), s.Outstanding().Uint64())

	require.Len(t, rec.events, 1)
	ev, ok := rec.events[0].(Split)
	require.True(t, ok)
	assert.Equal(t, owner, ev.Sender)
	assert.Equal(t, recipient1, ev.First)
	assert.Equal(t, recipient2, ev.Second)
	assert.Equal(t, uint64(2), ev.Share.Uint64())
}

func TestSplit_Accumulates(t *testing.T) {
	s, _, _ := deploy(t)
	ctx := context.Background()

	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(2)))
	require.NoError(t, s.Split(ctx, owner, recipient2, recipient1, u(10)))
	require.NoError(t, s.Split(ctx, thirdParty, recipient1, recipient2, u(6)))

	assert.Equal(t, uint64(9), s.Balances(recipient1).Uint64())
	assert.Equal(t, uint64(9), s.Balances(recipient2).Uint64())
	assert.Equal(t, uint64(18), s.Outstanding().Uint64())
}

func TestSplit_Failures(t *testing.T) {
	zero := common.Address{}
	tests := []struct {
		name          string
		paused        bool
		first, second common.Address
		value         *uint256.Int
		want          error
	}{
		{name: "paused", paused: true, first: recipient1, second: recipient2, value: u(4), want: ErrOperationPaused},
		{name: "zero amount", first: recipient1, second: recipient2, value: u(0), want: ErrZeroAmount},
		{name: "nil amount", first: recipient1, second: recipient2, value: nil, want: ErrZeroAmount},
		{name: "odd amount", first: recipient1, second: recipient2, value: u(1), want: ErrOddAmount},
		{name: "odd large amount", first: recipient1, second: recipient2, value: uint256.MustFromDecimal("1000000000000000000000001"), want: ErrOddAmount},
		{name: "owner is second recipient", first: recipient1, second: owner, value: u(2), want: ErrSelfDealingForbidden},
		{name: "owner is first recipient", first: owner, second: recipient2, value: u(2), want: ErrSelfDealingForbidden},
		{name: "same recipients", first: recipient2, second: recipient2, value: u(2), want: ErrDuplicateRecipient},
		{name: "first recipient empty", first: zero, second: recipient2, value: u(2), want: ErrInvalidRecipient},
		{name: "second recipient empty", first: recipient1, second: zero, value: u(2), want: ErrInvalidRecipient},
		{name: "both recipients empty", first: zero, second: zero, value: u(2), want: ErrDuplicateRecipient},
		// ordering: pause beats every other check
		{name: "paused and odd", paused: true, first: owner, second: owner, value: u(1), want: ErrOperationPaused},
		// ordering: zero beats self-dealing
		{name: "zero and self dealing", first: owner, second: recipient2, value: u(0), want: ErrZeroAmount},
		// ordering: odd beats duplicate
		{name: "odd and duplicate", first: recipient1, second: recipient1, value: u(3), want: ErrOddAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, rec := deploy(t, WithPaused(tt.paused))
			before := s.State()

			err := s.Split(context.Background(), owner, tt.first, tt.second, tt.value)
			require.ErrorIs(t, err, tt.want)

			assert.Equal(t, before, s.State())
			assert.True(t, s.Outstanding().IsZero())
			assert.Empty(t, rec.events)
		})
	}
}

func TestSplit_OverflowLeavesStateUntouched(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	even := new(uint256.Int).Sub(max, u(1))
	s, err := Restore(State{
		Owner:    owner,
		Balances: map[common.Address]*uint256.Int{recipient1: new(uint256.Int).Rsh(max, 1)},
	}, newPayouts())
	require.NoError(t, err)
	before := s.State()

	err = s.Split(context.Background(), owner, recipient1, recipient2, even)
	require.ErrorIs(t, err, ErrBalanceOverflow)
	assert.Equal(t, before, s.State())
	assert.True(t, s.Balances(recipient2).IsZero())
}

func TestWithdraw_PaysOutAndZeroes(t *testing.T) {
	s, p, rec := deploy(t)
	ctx := context.Background()
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(4)))

	amount, err := s.Withdraw(ctx, recipient1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), amount.Uint64())
	assert.True(t, s.Balances(recipient1).IsZero())
	assert.Equal(t, uint64(2), s.Balances(recipient2).Uint64())
	assert.Equal(t, uint64(2), p.total(recipient1))
	assert.Equal(t, uint64(2), s.Outstanding().Uint64())
	assert.True(t, s.InFlight().IsZero())
	assert.Equal(t, []string{"LogSplit", "LogWithdraw"}, rec.names())

	// a second withdraw has nothing left to pay
	amount, err = s.Withdraw(ctx, recipient1)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
	assert.Equal(t, uint64(2), p.total(recipient1))
	assert.Len(t, rec.events, 2)
}

func TestWithdraw_ZeroBalanceIsNoop(t *testing.T) {
	s, p, rec := deploy(t)
	amount, err := s.Withdraw(context.Background(), thirdParty)
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
	assert.Equal(t, uint64(0), p.total(thirdParty))
	assert.Empty(t, rec.events)
}

func TestWithdraw_AllowedWhilePaused(t *testing.T) {
	s, p, _ := deploy(t)
	ctx := context.Background()
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(8)))
	require.NoError(t, s.Pause(ctx, owner))

	_, err := s.Withdraw(ctx, recipient2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), p.total(recipient2))
}

func TestWithdraw_TransferFailureRollsBack(t *testing.T) {
	s, p, rec := deploy(t)
	ctx := context.Background()
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(4)))

	rejected := errors.New("recipient rejects value")
	p.fail = rejected
	_, err := s.Withdraw(ctx, recipient1)
	require.ErrorIs(t, err, ErrTransferFailed)
	require.ErrorIs(t, err, rejected)

	assert.Equal(t, uint64(2), s.Balances(recipient1).Uint64())
	assert.Equal(t, uint64(4), s.Outstanding().Uint64())
	assert.True(t, s.InFlight().IsZero())
	assert.Equal(t, []string{"LogSplit"}, rec.names())

	p.fail = nil
	_, err = s.Withdraw(ctx, recipient1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.total(recipient1))
}

func TestWithdraw_DebitsBeforeTransfer(t *testing.T) {
	s, p, _ := deploy(t)
	ctx := context.Background()
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(6)))

	var seenBalance, seenInFlight uint64
	p.hook = func(ctx context.Context, to common.Address) {
		seenBalance = s.Balances(to).Uint64()
		seenInFlight = s.InFlight().Uint64()
	}
	_, err := s.Withdraw(ctx, recipient1)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), seenBalance)
	assert.Equal(t, uint64(3), seenInFlight)
}

func TestWithdraw_ReentrantCallRejected(t *testing.T) {
	s, p, _ := deploy(t)
	ctx := context.Background()
	require.NoError(t, s.Split(ctx, owner, recipient1, recipient2, u(4)))

	var reentryErrs []error
	p.hook = func(ctx context.Context, to common.Address) {
		assert.True(t, s.inCall(ctx))
		_, err := s.Withdraw(ctx, to)
		reentryErrs = append(reentryErrs, err)
		reentryErrs = append(reentryErrs, s.Split(ctx, thirdParty, recipient1, recipient2, u(2)))
		reentryErrs = append(reentryErrs, s.Pause(ctx, owner))
	}

	amount, err := s.Withdraw(ctx, recipient1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), amount.Uint64())
	require.Len(t, reentryErrs, 3)
	for _, err := range reentryErrs {
		assert.ErrorIs(t, err, ErrReentrantCall)
	}
	assert.Equal(t, uint64(2), p.total(recipient1))
	assert.False(t, s.Paused())
}

func TestEnter_HonoursCancellation(t *testing.T) {
	s, p, _ := deploy(t)
	require.NoError(t, s.Split(context.Background(), owner, recipient1, recipient2, u(4)))

	blocked := make(chan struct{})
	release := make(chan struct{})
	p.hook = func(context.Context, common.Address) {
		close(blocked)
		<-release
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.Withdraw(context.Background(), recipient1)
		done <- err
	}()
	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Split(ctx, owner, recipient1, recipient2, u(2))
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-done)
}

func TestWithdraw_CallbackWithUnrelatedContextWaits(t *testing.T) {
	var s *Splitter
	var callbackErr error
	payout := TransferFunc(func(ctx context.Context, to common.Address, amount *uint256.Int) error {
		// not derived from ctx: invisible to the reentrancy check
		fresh, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		callbackErr = s.Pause(fresh, owner)
		return nil
	})
	s, err := Deploy(owner, nil, payout)
	require.NoError(t, err)
	require.NoError(t, s.Split(context.Background(), thirdParty, recipient1, recipient2, u(4)))

	amount, err := s.Withdraw(context.Background(), recipient1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), amount.Uint64())
	assert.ErrorIs(t, callbackErr, context.DeadlineExceeded)
	assert.False(t, s.Paused())

	// the call lock is free again once Withdraw returns
	require.NoError(t, s.Pause(context.Background(), owner))
}
