package btc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// fakeCaller answers calls from per-method handlers that return a JSON result
type fakeCaller struct {
	mu       sync.Mutex
	handlers map[string]func(args []interface{}) (interface{}, error)
	calls    []string
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{handlers: make(map[string]func([]interface{}) (interface{}, error))}
}

func (f *fakeCaller) on(method string, h func(args []interface{}) (interface{}, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeCaller) called(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *fakeCaller) CallContext(_ context.Context, result interface{}, method string, args ...interface{}) error {
	f.mu.Lock()
	f.calls = append(f.calls, method)
	h, ok := f.handlers[method]
	f.mu.Unlock()

	if !ok {
		return &bitcoindError{Code: -32601, Message: fmt.Sprintf("Method not found: %s", method)}
	}
	out, err := h(args)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (f *fakeCaller) Close() {}
