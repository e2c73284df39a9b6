package cascade

import "github.com/jacentio/prune/store"

// Pending is a cascading delete in flight.
type Pending struct {
	done   chan struct{}
	result store.DeleteResult
	err    error
}

// run starts fn in its own goroutine.
func run(fn func() (store.DeleteResult, error)) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.result, p.err = fn()
	}()
	return p
}

// resolved returns an already finished Pending.
func resolved(result store.DeleteResult, err error) *Pending {
	p := &Pending{done: make(chan struct{}), result: result, err: err}
	close(p.done)
	return p
}

// Done is closed once every dispatched delete has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the delete has finished and returns the primary table's result.
// It is safe to call from several goroutines.
func (p *Pending) Wait() (store.DeleteResult, error) {
	<-p.done
	return p.result, p.err
}
