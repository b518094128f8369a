package codec

import (
	"context"
	"sync"

	"github.com/ZentaChain/zentalk-client/pkg/entity"
)

// Task is the pending result of an asynchronous file decode. It resolves
// exactly once, to either a file message or an error.
type Task struct {
	done   chan struct{}
	once   sync.Once
	result *entity.FileMessage
	err    error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// resolve records the outcome. Later calls are ignored.
func (t *Task) resolve(f *entity.FileMessage, err error) {
	t.once.Do(func() {
		t.result = f
		t.err = err
		close(t.done)
	})
}

// Done is closed once the task has resolved
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome. It must only be called after Done is closed.
func (t *Task) Result() (*entity.FileMessage, error) {
	return t.result, t.err
}

// Wait blocks until the task resolves or ctx ends
func (t *Task) Wait(ctx context.Context) (*entity.FileMessage, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
