package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// dispatcher runs updates concurrently across users and strictly in
// arrival order for each user. A user's worker goroutine exists only while
// that user has updates queued.
type dispatcher struct {
	handle func(tgbotapi.Update)

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
}

func newDispatcher(handle func(tgbotapi.Update)) *dispatcher {
	return &dispatcher{
		handle: handle,
		queues: make(map[int64][]tgbotapi.Update),
	}
}

// submit never blocks the update loop.
func (d *dispatcher) submit(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	key := update.Message.From.ID

	d.mu.Lock()
	if pending, busy := d.queues[key]; busy {
		d.queues[key] = append(pending, update)
		d.mu.Unlock()
		return
	}
	d.queues[key] = nil
	d.mu.Unlock()

	d.wg.Add(1)
	go d.work(key, update)
}

func (d *dispatcher) work(key int64, update tgbotapi.Update) {
	defer d.wg.Done()
	for {
		d.handle(update)

		d.mu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		update = pending[0]
		d.queues[key] = pending[1:]
		d.mu.Unlock()
	}
}

// wait blocks until every queued update has been handled.
func (d *dispatcher) wait() {
	d.wg.Wait()
}

func (d *dispatcher) active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}
