package chat

import "sync"

// presenceLocks serializes presence transitions (login, cleanup) per username,
// so the credential store and the registry change together.
type presenceLocks struct {
	mu    sync.Mutex
	locks map[string]*presenceLock
}

type presenceLock struct {
	mu   sync.Mutex
	refs int
}

func newPresenceLocks() *presenceLocks {
	return &presenceLocks{locks: make(map[string]*presenceLock)}
}

// Lock blocks until username is free and returns its unlock func.
func (p *presenceLocks) Lock(username string) (unlock func()) {
	p.mu.Lock()
	l, ok := p.locks[username]
	if !ok {
		l = &presenceLock{}
		p.locks[username] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()

			p.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(p.locks, username)
			}
			p.mu.Unlock()
		})
	}
}
