package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	fhttp "github.com/bogdanfinn/fhttp"

	"ogameapi/captcha"
)

type fakeResponse struct {
	status int
	body   string
	header map[string]string
	err    error
}

func jsonResponse(status int, v interface{}) fakeResponse {
	data, _ := json.Marshal(v)
	return fakeResponse{status: status, body: string(data)}
}

// fakeDoer answers requests by "METHOD url-prefix" in registration order.
// A route with several responses hands them out one per call and repeats the last.
type fakeDoer struct {
	mu       sync.Mutex
	routes   []string
	replies  map[string][]fakeResponse
	requests []*fhttp.Request
	bodies   []string
	cookies  map[string][]*fhttp.Cookie
}

func newFakeDoer() *fakeDoer {
	return &fakeDoer{replies: make(map[string][]fakeResponse), cookies: make(map[string][]*fhttp.Cookie)}
}

func (f *fakeDoer) on(method, prefix string, responses ...fakeResponse) *fakeDoer {
	key := method + " " + prefix
	if _, ok := f.replies[key]; !ok {
		f.routes = append(f.routes, key)
	}
	f.replies[key] = append(f.replies[key], responses...)
	return f
}

func (f *fakeDoer) Do(req *fhttp.Request) (*fhttp.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body string
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)

	target := req.Method + " " + req.URL.String()
	var match string
	for _, key := range f.routes {
		if strings.HasPrefix(target, key) && len(key) > len(match) {
			match = key
		}
	}
	if match == "" {
		return nil, fmt.Errorf("fake: no route for %s", target)
	}

	queue := f.replies[match]
	reply := queue[0]
	if len(queue) > 1 {
		f.replies[match] = queue[1:]
	}
	if reply.err != nil {
		return nil, reply.err
	}

	resp := &fhttp.Response{
		StatusCode: reply.status,
		Header:     fhttp.Header{},
		Body:       io.NopCloser(bytes.NewBufferString(reply.body)),
		Request:    req,
	}
	for k, v := range reply.header {
		resp.Header.Set(k, v)
	}
	return resp, nil
}

func (f *fakeDoer) SetCookies(u *url.URL, cookies []*fhttp.Cookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies[u.Host] = append(f.cookies[u.Host], cookies...)
}

// count returns how many requests started with "METHOD url-prefix".
func (f *fakeDoer) count(method, prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, req := range f.requests {
		if req.Method == method && strings.HasPrefix(req.URL.String(), prefix) {
			n++
		}
	}
	return n
}

func (f *fakeDoer) bodiesOf(method, prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []string
	for i, req := range f.requests {
		if req.Method == method && strings.HasPrefix(req.URL.String(), prefix) {
			out = append(out, f.bodies[i])
		}
	}
	return out
}

var errConnectionRefused = errors.New("dial tcp: connection refused")

// scriptedAnswers replays answers and records what it was shown.
type scriptedAnswers struct {
	answers   []captcha.Answer
	err       error
	questions [][]byte
}

func (s *scriptedAnswers) Answer(question, icons []byte) (captcha.Answer, error) {
	s.questions = append(s.questions, question)
	if s.err != nil {
		return captcha.Answer{}, s.err
	}
	if len(s.answers) == 0 {
		return captcha.Answer{Index: 0, LowConfidence: true}, nil
	}
	a := s.answers[0]
	if len(s.answers) > 1 {
		s.answers = s.answers[1:]
	}
	return a, nil
}

type staticBlackbox string

func (b staticBlackbox) Blackbox() (string, error) { return string(b), nil }

func mustContain(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("%q does not contain %q", haystack, needle)
	}
}
