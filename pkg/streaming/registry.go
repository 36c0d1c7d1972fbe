package streaming

import "sync"

// Registry tracks the in-flight request of each slot
type Registry struct {
	requests map[string]*Request
	mu       sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		requests: make(map[string]*Request),
	}
}

// Register stores r in slot and returns the request it replaced, if any
func (r *Registry) Register(slot string, req *Request) *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.requests[slot]
	r.requests[slot] = req
	return prev
}

func (r *Registry) Get(slot string) (*Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, exists := r.requests[slot]
	return req, exists
}

// Unregister removes req from slot unless a newer request took its place
func (r *Registry) Unregister(slot string, req *Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests[slot] == req {
		delete(r.requests, slot)
	}
}

// Take removes and returns the request of slot
func (r *Registry) Take(slot string) (*Request, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, exists := r.requests[slot]
	delete(r.requests, slot)
	return req, exists
}

// Len returns the number of in-flight requests
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}
