package conversation

import (
	"context"
	"sync"
)

// feed fans generated tokens out to any number of subscribers. Tokens
// are buffered so a subscriber that attaches mid-generation replays the
// stream from the beginning.
type feed struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tokens []string
	done   bool
}

func newFeed() *feed {
	f := &feed{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *feed) publish(token string) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *feed) finish() {
	f.mu.Lock()
	f.done = true
	f.mu.Unlock()
	f.cond.Broadcast()
}

// subscribe returns a channel that yields the buffered tokens followed
// by live ones. The channel closes when generation finishes or ctx is
// cancelled.
func (f *feed) subscribe(ctx context.Context) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		next := 0
		for {
			f.mu.Lock()
			for next >= len(f.tokens) && !f.done {
				f.cond.Wait()
			}
			if next >= len(f.tokens) {
				f.mu.Unlock()
				return
			}
			token := f.tokens[next]
			next++
			f.mu.Unlock()

			select {
			case ch <- token:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}
