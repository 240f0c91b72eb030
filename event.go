package rwlock

/* Manual-reset event built on channel close */

// event wakes every goroutine waiting on it when posted. A post with no
// waiters is not remembered: the next wait gets a fresh channel.
// The zero value is ready to use; callers hold the lock's bookkeeping mutex.
type event struct {
	ch chan struct{}
}

// wait returns the channel that the next post closes.
func (e *event) wait() <-chan struct{} {
	if e.ch == nil {
		e.ch = make(chan struct{})
	}
	return e.ch
}

// post wakes all current waiters and resets the event.
func (e *event) post() {
	if e.ch != nil {
		close(e.ch)
		e.ch = nil
	}
}
