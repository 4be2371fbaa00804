package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeServos struct {
	positions map[int]int
	err       error
	torque    []bool
	closed    bool
}

func (f *fakeServos) read(context.Context) (map[int]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int]int, len(f.positions))
	for id, pos := range f.positions {
		out[id] = pos
	}
	return out, nil
}

func (f *fakeServos) setTorque(_ context.Context, on bool) error {
	f.torque = append(f.torque, on)
	return nil
}

func (f *fakeServos) close() error {
	f.closed = true
	return nil
}

func newFakeServoBus(t *testing.T, logger *zap.Logger) (*ServoBus, *fakeServos) {
	t.Helper()
	cal := Calibration{
		BackLeftEncoder:  {ID: 10},
		FrontLeftEncoder: {ID: 12, DriveMode: 1, HomingOffset: 96},
	}
	f := &fakeServos{positions: map[int]int{10: 1000, 12: 1000}}
	return newServoBus(cal, f.read, f.setTorque, f.close, logger), f
}

func TestServoBus_Refresh(t *testing.T) {
	b, _ := newFakeServoBus(t, nil)

	// nothing cached before the first read
	assert.Zero(t, b.Ticks(BackLeftEncoder))
	_, ok := b.Raw(BackLeftEncoder)
	assert.False(t, ok)

	require.NoError(t, b.Refresh(context.Background()))

	raw, ok := b.Raw(BackLeftEncoder)
	require.True(t, ok)
	assert.Equal(t, 1000, raw)
	assert.Equal(t, 1000.0, b.Ticks(BackLeftEncoder))
	assert.Equal(t, 3000.0, b.Encoder(FrontLeftEncoder).GetAbsolutePosition())

	_, ok = b.Raw(Shoulder)
	assert.False(t, ok, "uncalibrated device")
}

func TestServoBus_FailureKeepsReadings(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	b, f := newFakeServoBus(t, zap.New(core))
	ctx := context.Background()

	require.NoError(t, b.Refresh(ctx))

	f.err = errors.New("timeout")
	f.positions[10] = 2000
	assert.Error(t, b.Refresh(ctx))
	assert.Error(t, b.Refresh(ctx))
	assert.ErrorContains(t, b.Err(), "timeout")
	assert.Equal(t, 1000.0, b.Ticks(BackLeftEncoder))
	assert.Equal(t, 1, logs.FilterMessage("servo bus error").Len())

	f.err = nil
	require.NoError(t, b.Refresh(ctx))
	assert.Equal(t, 2000.0, b.Ticks(BackLeftEncoder))
	assert.Equal(t, 1, logs.FilterMessage("servo bus recovered").Len())
}

func TestServoBus_TorqueAndClose(t *testing.T) {
	b, f := newFakeServoBus(t, nil)
	ctx := context.Background()

	require.NoError(t, b.Disable(ctx))
	require.NoError(t, b.Enable(ctx))
	assert.Equal(t, []bool{false, true}, f.torque)

	require.NoError(t, b.Close())
	assert.True(t, f.closed)
}
