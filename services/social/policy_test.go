package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelay(t *testing.T) {
	p := defaultRetryPolicy

	require.Equal(t, 30*time.Second, p.Delay(0))
	require.Equal(t, time.Minute, p.Delay(1))
	require.Equal(t, 2*time.Minute, p.Delay(2))
	require.Equal(t, 16*time.Minute, p.Delay(5))
	require.Equal(t, 30*time.Minute, p.Delay(6))
	require.Equal(t, 30*time.Minute, p.Delay(20))
}

func TestPolicyForOverride(t *testing.T) {
	require.Equal(t, 4, PolicyFor(TikTok).MaxAttempts)
	require.Equal(t, time.Minute, PolicyFor(TikTok).BaseDelay)
	require.Equal(t, defaultRetryPolicy, PolicyFor(Pinterest))
	require.Equal(t, defaultRetryPolicy, PolicyFor(Platform("unknown")))
}

func TestMethodOrderFor(t *testing.T) {
	require.Equal(t, []Method{MethodAPI, MethodWebhook}, MethodOrderFor(Pinterest))
	require.Equal(t, []Method{MethodBrowser, MethodWebhook}, MethodOrderFor(Instagram))
	require.Equal(t, []Method{MethodAPI, MethodBrowser, MethodWebhook}, MethodOrderFor(Facebook))
	require.Equal(t, []Method{MethodBrowser, MethodWebhook}, MethodOrderFor(TikTok))
	require.Equal(t, []Method{MethodWebhook}, MethodOrderFor(Platform("mystery")))
}

func TestEveryPlatformHasAMethodChain(t *testing.T) {
	for _, p := range AllPlatforms {
		require.NotEmpty(t, methodOrder[p], "platform %s has no method chain", p)
	}
}
