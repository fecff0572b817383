package dedup_test

import (
	"context"
	"strings"
	"sync"

	"github.com/velmie/beetle"
	"github.com/velmie/beetle/kv"
)

type testMsg struct {
	id     string
	header beetle.Header
}

func msg(id string) testMsg {
	return testMsg{id: id, header: make(beetle.Header)}
}

func redundantMsg(id string) testMsg {
	m := msg(id)
	m.header.SetRedundant()
	return m
}

// spyAdapter records dispositions per message key.
type spyAdapter struct {
	drops      map[string]int
	requeues   map[string]int
	dropErr    error
	requeueErr error
}

func newSpyAdapter() *spyAdapter {
	return &spyAdapter{
		drops:    make(map[string]int),
		requeues: make(map[string]int),
	}
}

func (a *spyAdapter) KeyOf(m testMsg) (string, error) {
	if m.id == "" {
		return "", beetle.ErrMissingMessageID
	}
	return m.id, nil
}

func (a *spyAdapter) ExpiresAt(m testMsg) (int64, error) {
	return m.header.ExpiresAt()
}

func (a *spyAdapter) IsRedundant(m testMsg) (bool, error) {
	return m.header.Redundant()
}

func (a *spyAdapter) Drop(_ context.Context, m testMsg) error {
	a.drops[m.id]++
	return a.dropErr
}

func (a *spyAdapter) Requeue(_ context.Context, m testMsg) error {
	a.requeues[m.id]++
	return a.requeueErr
}

func (a *spyAdapter) dropCount() int {
	return sum(a.drops)
}

func (a *spyAdapter) requeueCount() int {
	return sum(a.requeues)
}

func sum(m map[string]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

// handlerSpy records the keys its handler was invoked with.
type handlerSpy struct {
	calls []string
	errs  map[string]error
}

func (h *handlerSpy) handle(_ context.Context, m testMsg) error {
	h.calls = append(h.calls, m.id)
	return h.errs[m.id]
}

// faultyStore fails reads or writes with err.
type faultyStore struct {
	*kv.Memory[string]
	getErr error
	putErr error
}

func (s *faultyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.Memory.Get(ctx, key)
}

func (s *faultyStore) Put(ctx context.Context, key string, value string) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.Memory.Put(ctx, key, value)
}

// racingStore completes a key as soon as it is claimed, as if another consumer
// finished the message right before the claim.
type racingStore struct {
	*kv.Memory[string]
}

func (s racingStore) PutIfAbsent(ctx context.Context, key string, value string) (bool, error) {
	if base, ok := strings.CutSuffix(key, kv.Separator+"mutex"); ok {
		if err := s.Memory.Put(ctx, kv.SuffixKey(base, "status"), "COMPLETE"); err != nil {
			return false, err
		}
	}
	return s.Memory.PutIfAbsent(ctx, key, value)
}

// claimBarrierStore holds every reader of a claim until all expected readers have read it,
// so they all observe the same claim before any of them replaces it.
type claimBarrierStore struct {
	*kv.Memory[string]
	readers sync.WaitGroup
}

func (s *claimBarrierStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.Memory.Get(ctx, key)
	if strings.HasSuffix(key, kv.Separator+"mutex") {
		s.readers.Done()
		s.readers.Wait()
	}
	return v, ok, err
}

type plainStore map[string]string

func (p plainStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := p[key]
	return v, ok, nil
}

func (p plainStore) Put(_ context.Context, key string, value string) error {
	p[key] = value
	return nil
}
