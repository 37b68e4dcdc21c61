package controller

import (
	"context"
	"sync"

	"pet-health-sync/internal/domain/records"
)

// keyedLocks serializa operaciones por (tipo,id). Los que esperan entran en orden de llegada:
// la cola de envío de un canal es FIFO.
type keyedLocks struct {
	mu sync.Mutex
	m  map[records.Key]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: make(map[records.Key]*keyLock)}
}

func (l *keyedLocks) lock(ctx context.Context, k records.Key) (func(), error) {
	l.mu.Lock()
	kl, ok := l.m[k]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.m[k] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(k, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(k, kl)
		return nil, ctx.Err()
	}
}

func (l *keyedLocks) release(k records.Key, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.m, k)
	}
	l.mu.Unlock()
}

// waiting devuelve cuántas operaciones tienen o esperan el lock de k.
func (l *keyedLocks) waiting(k records.Key) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if kl, ok := l.m[k]; ok {
		return kl.refs
	}
	return 0
}
