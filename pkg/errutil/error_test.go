package errutil

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := RateLimit("too many requests", WithRetryAfter(5*time.Second))
	require.Equal(t, KindRateLimit, KindOf(err))

	wrapped := fmt.Errorf("publish pinterest: %w", err)
	require.Equal(t, KindRateLimit, KindOf(wrapped))
	require.Equal(t, 5*time.Second, RetryAfterHint(wrapped))

	require.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{TransientNetwork("timeout"), true},
		{RateLimit("429"), true},
		{StorageUnavailable("exhausted"), true},
		{AuthExpired("401"), false},
		{InvalidInput("400"), false},
		{SessionExpired("login redirect"), false},
		{MediaGeneration("no codec"), false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.retryable, IsRetryable(tc.err), tc.err.Error())
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := TransientNetwork("send photo", WithErr(cause))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "transient_network")
	require.Contains(t, err.Error(), "connection reset")
}
