package social

import "time"

// RetryPolicy is the per-platform backoff schedule. Codified in one table
// instead of being scattered through the backends.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      int
	Cap         time.Duration
	MaxAttempts int
}

var defaultRetryPolicy = RetryPolicy{
	BaseDelay:   30 * time.Second,
	Factor:      2,
	Cap:         30 * time.Minute,
	MaxAttempts: 3,
}

// retryPolicies overrides the default where a platform needs one.
// TikTok's web upload is flaky enough to deserve an extra attempt.
var retryPolicies = map[Platform]RetryPolicy{
	TikTok: {BaseDelay: time.Minute, Factor: 2, Cap: 30 * time.Minute, MaxAttempts: 4},
}

// PolicyFor returns the retry policy for a platform.
func PolicyFor(platform Platform) RetryPolicy {
	if p, ok := retryPolicies[platform]; ok {
		return p
	}
	return defaultRetryPolicy
}

// Delay computes the backoff before attempt retryCount+1.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < retryCount; i++ {
		d *= time.Duration(p.Factor)
		if d >= p.Cap {
			return p.Cap
		}
	}
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// methodOrder is the dispatch table: the ordered list of backend kinds to
// try per platform. The dispatcher walks it until one kind is available.
var methodOrder = map[Platform][]Method{
	Pinterest:        {MethodAPI, MethodWebhook},
	YouTubeShorts:    {MethodAPI, MethodWebhook},
	YandexDzen:       {MethodAPI, MethodWebhook},
	Instagram:        {MethodBrowser, MethodWebhook},
	InstagramReels:   {MethodBrowser, MethodWebhook},
	InstagramStories: {MethodBrowser, MethodWebhook},
	Facebook:         {MethodAPI, MethodBrowser, MethodWebhook},
	FacebookReels:    {MethodAPI, MethodBrowser, MethodWebhook},
	FacebookStories:  {MethodAPI, MethodBrowser, MethodWebhook},
	TikTok:           {MethodBrowser, MethodWebhook},
	Twitter:          {MethodAPI, MethodWebhook},
}

// MethodOrderFor returns the fallback chain for a platform.
func MethodOrderFor(platform Platform) []Method {
	if order, ok := methodOrder[platform]; ok {
		return order
	}
	return []Method{MethodWebhook}
}
