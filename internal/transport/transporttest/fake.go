// Package transporttest provides a scripted Transport for tests.
package transporttest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Call is one request seen by the fake
type Call struct {
	Method  string
	URL     string
	Payload []byte
}

// Reply is one scripted answer
type Reply struct {
	Status int
	Body   string
	Err    error
}

// Fake answers requests with scripted replies in order and records every call.
// Requests beyond the script get a 500 so tests fail loudly.
type Fake struct {
	mu      sync.Mutex
	replies []Reply
	calls   []Call
}

// New returns an empty fake
func New() *Fake {
	return &Fake{}
}

// Reply queues a response
func (f *Fake) Reply(status int, body string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, Reply{Status: status, Body: body})
	return f
}

// OK queues a 200 response
func (f *Fake) OK(body string) *Fake {
	return f.Reply(http.StatusOK, body)
}

// Error queues a gateway rejection carrying code
func (f *Fake) Error(status int, code, message string) *Fake {
	return f.Reply(status, ErrorBody(code, message))
}

// Fail queues a transport-level failure
func (f *Fake) Fail(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, Reply{Err: err})
	return f
}

// Send implements transport.Transport
func (f *Fake) Send(_ context.Context, url string, payload []byte, method string) ([]byte, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Method: method, URL: url, Payload: payload})
	if len(f.replies) == 0 {
		return []byte(ErrorBody("TEST.UNEXPECTED", fmt.Sprintf("unexpected %s %s", method, url))), http.StatusInternalServerError, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.Err != nil {
		return nil, 0, r.Err
	}
	return []byte(r.Body), r.Status, nil
}

// Calls returns a copy of the recorded calls
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Pending is the number of scripted replies not consumed yet
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

// ErrorBody renders the gateway's error envelope
func ErrorBody(code, message string) string {
	message = strings.ReplaceAll(message, `"`, `'`)
	return fmt.Sprintf(`{"errors":[{"code":%q,"merchantMessage":%q,"customerMessage":%q}]}`, code, message, message)
}
