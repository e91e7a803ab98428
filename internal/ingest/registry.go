// SPDX-License-Identifier: MIT

package ingest

import "sync"

// cancelRegistry holds per-job cancellation flags. Entries live exactly as
// long as the run: registered after the lock is acquired, removed in the
// guaranteed teardown scope.
type cancelRegistry struct {
	mu    sync.Mutex
	flags map[string]bool
}

func newCancelRegistry() *cancelRegistry {
	return &cancelRegistry{flags: make(map[string]bool)}
}

func (r *cancelRegistry) register(jobID string) {
	r.mu.Lock()
	r.flags[jobID] = false
	r.mu.Unlock()
}

// requestCancel flips the flag. Returns false when the job is not running
// in this process.
func (r *cancelRegistry) requestCancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.flags[jobID]; !ok {
		return false
	}
	r.flags[jobID] = true
	return true
}

func (r *cancelRegistry) isCancelled(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags[jobID]
}

func (r *cancelRegistry) remove(jobID string) {
	r.mu.Lock()
	delete(r.flags, jobID)
	r.mu.Unlock()
}
