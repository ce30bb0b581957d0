package sop

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimecode(t *testing.T) {
	assert.Equal(t, "00:00", FormatTimecode(0))
	assert.Equal(t, "01:30", FormatTimecode(90*time.Second))
	assert.Equal(t, "59:59", FormatTimecode(59*time.Minute+59*time.Second))
	assert.Equal(t, "01:00:05", FormatTimecode(time.Hour+5*time.Second))
}

func TestParseTimecode(t *testing.T) {
	d, err := ParseTimecode("01:30")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = ParseTimecode("1:02:03")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, d)

	_, err = ParseTimecode("junk")
	assert.Error(t, err)

	_, err = ParseTimecode("01:75")
	assert.Error(t, err)
}

func TestParseTimecodeRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{0, time.Second, 90 * time.Second, 2 * time.Hour} {
		parsed, err := ParseTimecode(FormatTimecode(d))
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
}

func TestFramePlanValidate(t *testing.T) {
	plan := &FramePlan{Frames: []Frame{
		{Timestamp: time.Second},
		{Timestamp: 2 * time.Second},
		{Timestamp: 3 * time.Second},
	}}
	assert.NoError(t, plan.Validate(3))
	assert.Error(t, plan.Validate(2), "count above bound must fail")

	plan.Frames[2].Timestamp = 2 * time.Second
	assert.Error(t, plan.Validate(3), "non-increasing timestamps must fail")

	empty := &FramePlan{}
	assert.Error(t, empty.Validate(3))
}

func TestErrorKinds(t *testing.T) {
	err := TransientErrorf("service hiccup")
	assert.True(t, IsKind(err, KindTransient))
	assert.False(t, IsKind(err, KindRequest))
	assert.True(t, err.Retryable)

	wrapped := fmt.Errorf("calling model: %w", RequestErrorf("bad key"))
	assert.True(t, IsKind(wrapped, KindRequest))

	assert.False(t, IsKind(errors.New("plain"), KindRender))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &Error{Kind: KindTransient, Message: "model request failed", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "connection reset")
}
