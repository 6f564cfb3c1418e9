package llm

import (
	"context"
	"strings"
	"sync"
)

// FakeClient replays queued replies or errors in order. With an empty queue
// it falls back to a deterministic walk through the reporting flow, which is
// enough for offline demos.
type FakeClient struct {
	mu     sync.Mutex
	queue  []fakeStep
	calls  [][]Turn
	closed bool
}

type fakeStep struct {
	reply string
	err   error
}

func NewFakeClient(replies ...string) *FakeClient {
	f := &FakeClient{}
	for _, r := range replies {
		f.queue = append(f.queue, fakeStep{reply: r})
	}
	return f
}

func (f *FakeClient) Name() string { return "FakeLLM" }

func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakeClient) Push(reply string) *FakeClient {
	f.mu.Lock()
	f.queue = append(f.queue, fakeStep{reply: reply})
	f.mu.Unlock()
	return f
}

func (f *FakeClient) PushError(err error) *FakeClient {
	f.mu.Lock()
	f.queue = append(f.queue, fakeStep{err: err})
	f.mu.Unlock()
	return f
}

// Calls returns a copy of every history the client was asked to answer.
func (f *FakeClient) Calls() [][]Turn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]Turn, len(f.calls))
	for i, c := range f.calls {
		out[i] = append([]Turn(nil), c...)
	}
	return out
}

func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *FakeClient) Reply(ctx context.Context, history []Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify("llm.fake", err)
	}
	f.mu.Lock()
	f.calls = append(f.calls, append([]Turn(nil), history...))
	if len(f.queue) > 0 {
		step := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()
		return step.reply, classify("llm.fake", step.err)
	}
	f.mu.Unlock()
	return demoReply(history), nil
}

// demoReply answers by counting user turns since the last summary request.
func demoReply(history []Turn) string {
	var users []string
	for _, t := range history {
		if t.Role == RoleUser {
			users = append(users, strings.TrimSpace(t.Content))
		}
	}
	switch len(users) {
	case 0:
		return "I'm here to help. Please tell me what happened."
	case 1:
		return "Thank you for reporting this. What is the location of the incident?"
	case 2:
		return "If it's safe for you to do so, an image can be very helpful for the response team. Would you like to upload one?"
	default:
		desc := strings.TrimRight(users[0], ".!")
		loc := strings.TrimRight(users[1], ".!")
		return "Okay, so I have that there is " + desc + " at " + loc +
			". This will be classified under GENERAL. Is this information correct and complete?\n" +
			"DEPARTMENT_CLASSIFICATION: [GENERAL]"
	}
}
