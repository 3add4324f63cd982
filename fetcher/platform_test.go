// SPDX-License-Identifier: GPL-3.0-or-later

package fetcher_test

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rbmk-project/censordetect/model"
)

// hookList is a registry of hooks for testing.
type hookList[T any] struct {
	mu    sync.Mutex
	next  int
	hooks map[int]hookEntry[T]
}

type hookEntry[T any] struct {
	urls []string
	fx   model.Hook[T]
}

func (l *hookList[T]) add(urls []string, fx model.Hook[T]) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hooks == nil {
		l.hooks = make(map[int]hookEntry[T])
	}
	id := l.next
	l.next++
	l.hooks[id] = hookEntry[T]{urls: urls, fx: fx}
	return func() {
		l.mu.Lock()
		delete(l.hooks, id)
		l.mu.Unlock()
	}
}

func (l *hookList[T]) fire(URL string, ev *T) {
	l.mu.Lock()
	var fns []model.Hook[T]
	for _, entry := range l.hooks {
		if slices.Contains(entry.urls, URL) {
			fns = append(fns, entry.fx)
		}
	}
	l.mu.Unlock()
	for _, fx := range fns {
		fx(ev)
	}
}

func (l *hookList[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hooks)
}

// fakeReply is what the fake platform does with a request.
type fakeReply struct {
	resp   *model.Response
	code   string
	err    error
	silent bool
}

// fakePlatform is a [model.Platform] for testing.
type fakePlatform struct {
	preSend   hookList[model.SendHeadersEvent]
	completed hookList[model.OutcomeEvent]
	errored   hookList[model.OutcomeEvent]

	// skipPreSend disables running the pre-send hooks.
	skipPreSend bool

	// respond produces the reply given the wire headers.
	respond func(ctx context.Context, header http.Header) fakeReply

	sends atomic.Int64

	mu      sync.Mutex
	headers []http.Header
	origins []string
}

var _ model.Platform = &fakePlatform{}

func (p *fakePlatform) Send(ctx context.Context, req *model.Request) (*model.Response, error) {
	id := fmt.Sprintf("req-%d", p.sends.Add(1))
	ev := &model.SendHeadersEvent{RequestID: id, URL: req.URL, Header: req.Header.Clone()}
	if !p.skipPreSend {
		p.preSend.fire(req.URL, ev)
	}

	p.mu.Lock()
	p.headers = append(p.headers, ev.Header)
	p.origins = append(p.origins, req.Origin)
	p.mu.Unlock()

	reply := p.respond(ctx, ev.Header)
	outcome := &model.OutcomeEvent{RequestID: id, URL: req.URL, Error: reply.code}
	if reply.err != nil {
		if !reply.silent {
			p.errored.fire(req.URL, outcome)
		}
		return nil, reply.err
	}
	outcome.StatusCode = reply.resp.StatusCode
	if !reply.silent {
		p.completed.fire(req.URL, outcome)
	}
	return reply.resp, nil
}

func (p *fakePlatform) OnBeforeSendHeaders(urls []string, hook model.Hook[model.SendHeadersEvent]) func() {
	return p.preSend.add(urls, hook)
}

func (p *fakePlatform) OnCompleted(urls []string, hook model.Hook[model.OutcomeEvent]) func() {
	return p.completed.add(urls, hook)
}

func (p *fakePlatform) OnErrorOccurred(urls []string, hook model.Hook[model.OutcomeEvent]) func() {
	return p.errored.add(urls, hook)
}

func (p *fakePlatform) OpenSecureSocket(ctx context.Context, host string) error {
	return nil
}

func (p *fakePlatform) hookCount() int {
	return p.preSend.len() + p.completed.len() + p.errored.len()
}

func (p *fakePlatform) lastHeader() http.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.headers[len(p.headers)-1]
}

// okReply returns a successful reply with the given body.
func okReply(body string) fakeReply {
	return fakeReply{resp: &model.Response{
		StatusCode: 200,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       []byte(body),
	}}
}
