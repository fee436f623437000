package assistant

import "sync"

// userLocks serializes turns per user in the order lock is called. The
// holder hands the lock straight to the oldest waiter, so a late caller
// can never overtake an earlier one. Entries are dropped once nobody holds
// or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	waiters []chan struct{}
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock blocks until every earlier caller for userID has unlocked and
// returns the unlock function.
func (u *userLocks) lock(userID string) func() {
	u.mu.Lock()
	l, held := u.locks[userID]
	if !held {
		u.locks[userID] = &userLock{}
		u.mu.Unlock()
		return u.unlocker(userID)
	}
	turn := make(chan struct{})
	l.waiters = append(l.waiters, turn)
	u.mu.Unlock()

	<-turn
	return u.unlocker(userID)
}

func (u *userLocks) unlocker(userID string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			u.mu.Lock()
			defer u.mu.Unlock()

			l := u.locks[userID]
			if len(l.waiters) == 0 {
				delete(u.locks, userID)
				return
			}
			next := l.waiters[0]
			l.waiters = l.waiters[1:]
			close(next)
		})
	}
}

func (u *userLocks) size() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.locks)
}

// waiting reports how many callers are queued behind the holder.
func (u *userLocks) waiting(userID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if l, ok := u.locks[userID]; ok {
		return len(l.waiters)
	}
	return 0
}
