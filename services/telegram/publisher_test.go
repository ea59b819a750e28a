package telegram

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codequiz-publisher/pkg/errutil"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	calls   int
	replies []func() (tgbotapi.Message, error)

	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) > 0 {
		reply := f.replies[0]
		f.replies = f.replies[1:]
		return reply()
	}
	return tgbotapi.Message{MessageID: 100 + f.calls}, nil
}

func (f *fakeAPI) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestSendPhotoReturnsMessageID(t *testing.T) {
	api := &fakeAPI{}
	p := NewPublisherWithAPI(api, 4)

	id, err := p.SendPhoto(context.Background(), 1, "https://cdn.example.com/tasks/1/question.png", "Test. Done!")
	require.NoError(t, err)
	require.Equal(t, 101, id)
}

func TestPerChatSerialization(t *testing.T) {
	api := &fakeAPI{delay: 20 * time.Millisecond}
	p := NewPublisherWithAPI(api, 8)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.SendPhoto(context.Background(), 42, "https://cdn.example.com/q.png", "caption")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), api.maxInFlight, "two posts to the same chat must never overlap")
	require.Equal(t, 6, api.calls)
}

func TestRateLimitRetriesWithHint(t *testing.T) {
	api := &fakeAPI{
		replies: []func() (tgbotapi.Message, error){
			func() (tgbotapi.Message, error) {
				return tgbotapi.Message{}, &tgbotapi.Error{
					Code:               429,
					Message:            "Too Many Requests",
					ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1},
				}
			},
			func() (tgbotapi.Message, error) {
				return tgbotapi.Message{MessageID: 7}, nil
			},
		},
	}
	p := NewPublisherWithAPI(api, 4)

	start := time.Now()
	id, err := p.SendPhoto(context.Background(), 1, "https://cdn.example.com/q.png", "caption")
	require.NoError(t, err)
	require.Equal(t, 7, id)
	require.Equal(t, 2, api.calls)
	require.GreaterOrEqual(t, time.Since(start), time.Second, "must honor retry-after")
}

func TestFatalErrorDoesNotRetry(t *testing.T) {
	api := &fakeAPI{
		replies: []func() (tgbotapi.Message, error){
			func() (tgbotapi.Message, error) {
				return tgbotapi.Message{}, &tgbotapi.Error{Code: 400, Message: "can't parse entities"}
			},
		},
	}
	p := NewPublisherWithAPI(api, 4)

	_, err := p.SendPhoto(context.Background(), 1, "https://cdn.example.com/q.png", "caption")
	require.Error(t, err)
	require.Equal(t, errutil.KindInvalidInput, errutil.KindOf(err))
	require.Equal(t, 1, api.calls)
}

func TestSendQuizPoll(t *testing.T) {
	api := &fakeAPI{
		replies: []func() (tgbotapi.Message, error){
			func() (tgbotapi.Message, error) {
				return tgbotapi.Message{MessageID: 9, Poll: &tgbotapi.Poll{ID: "poll_1"}}, nil
			},
		},
	}
	p := NewPublisherWithAPI(api, 4)

	pollID, err := p.SendQuizPoll(context.Background(), 1, "What prints?", []string{"a", "b"}, 1, "Because.")
	require.NoError(t, err)
	require.Equal(t, "poll_1", pollID)
}
