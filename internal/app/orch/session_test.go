package orch

import (
	"testing"

	"github.com/dkeye/Stream/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from   State
		action Action
		next   State
		ok     bool
	}{
		{StateInit, ActionJoin, StateJoined, true},
		{StateJoined, ActionJoin, StateJoined, false},
		{StateInit, ActionGetRtpCapabilities, StateInit, true},
		{StateConsuming, ActionGetRtpCapabilities, StateConsuming, true},
		{StateClosed, ActionGetRtpCapabilities, StateClosed, false},
		{StateInit, ActionConnectTransport, StateInit, false},
		{StateJoined, ActionConnectTransport, StateConnected, true},
		{StateConnected, ActionConnectTransport, StateConnected, false},
		{StateJoined, ActionConsume, StateJoined, false},
		{StateConnected, ActionConsume, StateConsuming, true},
		{StateConsuming, ActionConsume, StateConsuming, true},
		{StateInit, ActionResumeConsumer, StateInit, false},
		{StateJoined, ActionResumeConsumer, StateJoined, true},
		{StateConsuming, ActionResumeConsumer, StateConsuming, true},
		{StateClosed, ActionResumeConsumer, StateClosed, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.action)+"/"+tc.from.String(), func(t *testing.T) {
			next, err := Next(tc.from, tc.action)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, domain.ErrInvalidSessionState)
			}
			assert.Equal(t, tc.next, next)
		})
	}
}

func TestUnknownAction(t *testing.T) {
	_, err := Next(StateInit, Action("produce"))
	assert.ErrorIs(t, err, domain.ErrInvalidSessionState)
}
