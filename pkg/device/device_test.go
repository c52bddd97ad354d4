// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/crucible/pkg/logger"
	"github.com/Thermoquad/crucible/pkg/transport"
)

func TestRetry_SucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "mfc@101", DefaultRetryPolicy(), logger.Nop(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return ChecksumMismatch("4A", "4B")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAfterSixAttempts(t *testing.T) {
	calls := 0
	cause := Malformed("no terminator")
	err := Retry(context.Background(), "mfc@101", DefaultRetryPolicy(), nil, func(int) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 6, calls)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, "mfc@101", unreachable.Device)
	assert.Equal(t, 6, unreachable.Attempts)
}

func TestRetry_DeviceErrorIsRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "furnace@5", DefaultRetryPolicy(), nil, func(int) error {
		calls++
		return &DeviceError{Device: "furnace@5", Op: "function 0x10", Code: 2, Reason: "illegal data address"}
	})

	assert.Equal(t, 6, calls)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.ErrorIs(t, err, ErrDeviceError)
	assert.Contains(t, err.Error(), "illegal data address")

	var de *DeviceError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 2, de.Code)
}

func TestRetry_DeviceErrorThenSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "mfc@101", DefaultRetryPolicy(), nil, func(int) error {
		calls++
		if calls < 3 {
			return &DeviceError{Device: "mfc@101", Op: "set-flow", Code: 2, Reason: "NAK02"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ContextCheckedBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "gauge@123", DefaultRetryPolicy(), nil, func(int) error {
		calls++
		cancel()
		return NoResponse(nil)
	})

	assert.Equal(t, 1, calls, "the attempt in flight completes, no further attempts start")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetry_Backoff(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, Backoff: 10 * time.Millisecond}
	start := time.Now()
	_ = Retry(context.Background(), "x", policy, nil, func(int) error { return NoResponse(nil) })
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRetryPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 6, DefaultRetryPolicy().Attempts())
	assert.Equal(t, 1, RetryPolicy{MaxRetries: 0}.Attempts())
	assert.Equal(t, 1, RetryPolicy{MaxRetries: -3}.Attempts())
}

func TestLink_ExchangeCountsAttempts(t *testing.T) {
	port := transport.NewMockPort(nil)
	bus := transport.NewBus("bus", port)
	stats := NewStatistics()
	link := NewLink("mfc@101", bus, WithStatistics(stats), WithLogger(logger.Nop()))

	err := link.Exchange(context.Background(), func(p transport.Port) error {
		if _, err := p.Write([]byte("ping")); err != nil {
			return err
		}
		resp, err := p.ReadUntil(';')
		if err != nil {
			return NoResponse(resp)
		}
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, 6, port.WriteCount())

	snap := stats.Snapshot()
	assert.Equal(t, uint64(6), snap.Attempts)
	assert.Equal(t, uint64(6), snap.Timeouts)
	assert.Equal(t, uint64(1), snap.UnreachableCalls)
	assert.Equal(t, uint64(6), snap.Errors())
	assert.Contains(t, stats.String(), "Timeouts:")

	link.Rename("mfc@102")
	assert.Equal(t, "mfc@102", link.Name())
}

func TestStatistics_Classification(t *testing.T) {
	s := NewStatistics()
	s.Record(nil)
	s.Record(ChecksumMismatch("00", "01"))
	s.Record(CRCMismatch(0x1234, 0x4321))
	s.Record(Malformed("short"))
	s.Record(NoResponse([]byte{0x05}))
	s.Record(&DeviceError{Device: "f", Op: "query", Code: 1})
	s.Record(errors.New("broken pipe"))

	snap := s.Snapshot()
	assert.Equal(t, uint64(7), snap.Attempts)
	assert.Equal(t, uint64(1), snap.Successes)
	assert.Equal(t, uint64(1), snap.ChecksumErrors)
	assert.Equal(t, uint64(1), snap.CRCErrors)
	assert.Equal(t, uint64(1), snap.MalformedFrames)
	assert.Equal(t, uint64(1), snap.Timeouts)
	assert.Equal(t, uint64(1), snap.DeviceErrors)
	assert.Equal(t, uint64(1), snap.TransportErrors)
	assert.Equal(t, "broken pipe", snap.LastError)

	s.Reset()
	assert.Zero(t, s.Snapshot().Attempts)
}

func TestStatusBoard(t *testing.T) {
	b := NewStatusBoard()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }

	b.Mark("furnace", nil)
	b.Mark("Argon", errors.New("unreachable"))

	assert.True(t, b.Online("furnace"))
	assert.False(t, b.Online("Argon"))
	assert.False(t, b.Online("missing"))

	clock = clock.Add(time.Minute)
	b.Mark("furnace", errors.New("timeout"))
	st, ok := b.Get("furnace")
	require.True(t, ok)
	assert.False(t, st.Online)
	assert.Equal(t, "timeout", st.LastError)
	assert.Equal(t, clock.Add(-time.Minute), st.LastSeen)
	assert.Equal(t, clock, st.Checked)

	snap := b.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "Argon", snap[0].Name)
	assert.Equal(t, "furnace", snap[1].Name)

	b.Reset()
	assert.Empty(t, b.Snapshot())
}

func TestFrameError_Messages(t *testing.T) {
	assert.Equal(t, "checksum mismatch: expected 4A, received 4B", ChecksumMismatch("4A", "4B").Error())
	assert.Equal(t, "CRC mismatch: expected 0x1234, received 0xABCD", CRCMismatch(0x1234, 0xABCD).Error())
	assert.Equal(t, "no response", NoResponse(nil).Error())
	assert.ErrorIs(t, NoResponse([]byte{1}), ErrNoResponse)
}
