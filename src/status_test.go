package rfcompanion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StatusIndicatorFollowsAntenna(t *testing.T) {
	var line = new(mockLine)
	var hub = NewHub(testLogger())
	var status = NewStatusIndicator(line, testLogger())

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() { done <- status.Run(ctx, hub) }()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	hub.Publish(Notification{Kind: EVENT_PROCESSING})                //nolint:exhaustruct
	hub.Publish(Notification{Kind: EVENT_ANTENNA_STATE, Busy: true}) //nolint:exhaustruct
	hub.Publish(Notification{Kind: EVENT_ANTENNA_STATE})             //nolint:exhaustruct
	hub.Publish(Notification{Kind: EVENT_COMPLETED})                 //nolint:exhaustruct
	hub.Publish(Notification{Kind: EVENT_ANTENNA_STATE, Busy: true}) //nolint:exhaustruct

	require.Eventually(t, func() bool { return hub.queued() == 0 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	// Off again on the way out, whatever the last state was.
	assert.Equal(t, []int{1, 0, 1, 0}, line.values)
	assert.Equal(t, 0, line.value())
	assert.True(t, line.closed)
	assert.Equal(t, 0, hub.Subscribers())
}

func Test_StatusIndicatorFromService(t *testing.T) {
	var rig = newServiceRig(t)
	var line = new(mockLine)
	var status = NewStatusIndicator(line, testLogger())

	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() { done <- status.Run(ctx, rig.hub) }()

	require.Eventually(t, func() bool { return rig.hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	var _, err = rig.svc.RequestTransmission("test", "a0")
	require.NoError(t, err)
	rig.runToTermination(t)
	rig.dispatcher.Drain()

	require.Eventually(t, func() bool { return rig.hub.queued() == 0 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int{1, 0, 0}, line.values)
}
