// Copyright © 2024 OpenIM. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keylock

import (
	"sync"
	"time"

	"github.com/dscache/corekv/internal/dscache/core"
)

type waiter struct {
	client core.ClientID
	ready  chan bool
}

// EnsurePlaceholder is called before a GRAB takes effect, so the locked
// key exists as a string value (locking.c's grabCommand: "locks require
// the key to exist and be a string").
type EnsurePlaceholder func(dbKey core.DBKey)

// DeletePlaceholder is called by handoff when no waiter remains, standing
// in for handOffLock's "no waiting clients, remove the string key" path.
type DeletePlaceholder func(dbKey core.DBKey)

// Registry is the per-process key-lock state for every database.
type Registry struct {
	mu         sync.Mutex
	owner      map[core.DBKey]core.ClientID
	heldLocks  map[core.ClientID][]core.DBKey
	blockQueue map[core.DBKey][]waiter
}

// New creates an empty lock registry.
func New() *Registry {
	return &Registry{
		owner:      make(map[core.DBKey]core.ClientID),
		heldLocks:  make(map[core.ClientID][]core.DBKey),
		blockQueue: make(map[core.DBKey][]waiter),
	}
}

// Grab implements GRAB. It reports whether the lock was
// granted; timeout <= 0 waits indefinitely. ensurePlaceholder runs before
// any lock bookkeeping, matching grabCommand's dbAdd-before-grab ordering.
func (r *Registry) Grab(client core.ClientID, dbKey core.DBKey, timeout time.Duration, ensurePlaceholder EnsurePlaceholder) bool {
	ensurePlaceholder(dbKey)

	r.mu.Lock()
	owner, owned := r.owner[dbKey]
	if owned && owner == client {
		r.mu.Unlock()
		return true // re-entrant GRAB
	}
	if !owned {
		r.owner[dbKey] = client
		r.heldLocks[client] = append(r.heldLocks[client], dbKey)
		r.mu.Unlock()
		return true
	}

	ch := make(chan bool, 1)
	r.blockQueue[dbKey] = append(r.blockQueue[dbKey], waiter{client: client, ready: ch})
	r.mu.Unlock()

	if timeout <= 0 {
		return <-ch
	}
	select {
	case granted := <-ch:
		return granted
	case <-time.After(timeout):
		r.mu.Lock()
		r.blockQueue[dbKey] = removeWaiter(r.blockQueue[dbKey], client)
		if len(r.blockQueue[dbKey]) == 0 {
			delete(r.blockQueue, dbKey)
		}
		r.mu.Unlock()
		return false
	}
}

// Release implements RELEASE: it is a no-op (returns
// false) if client does not own dbKey, otherwise it releases ownership and
// performs handoff — granting the lock to the head of block_queue if any,
// or invoking deletePlaceholder otherwise.
func (r *Registry) Release(client core.ClientID, dbKey core.DBKey, deletePlaceholder DeletePlaceholder) bool {
	r.mu.Lock()
	owner, owned := r.owner[dbKey]
	if !owned || owner != client {
		r.mu.Unlock()
		return false
	}
	delete(r.owner, dbKey)
	r.heldLocks[client] = removeDBKey(r.heldLocks[client], dbKey)
	if len(r.heldLocks[client]) == 0 {
		delete(r.heldLocks, client)
	}
	r.handOff(dbKey, deletePlaceholder)
	return true
}

// handOff must be called with r.mu held; it unlocks before signalling a
// waiter so Grab's receiver never blocks on our mutex.
func (r *Registry) handOff(dbKey core.DBKey, deletePlaceholder DeletePlaceholder) {
	queue := r.blockQueue[dbKey]
	if len(queue) == 0 {
		r.mu.Unlock()
		deletePlaceholder(dbKey)
		return
	}
	next := queue[0]
	rest := queue[1:]
	if len(rest) == 0 {
		delete(r.blockQueue, dbKey)
	} else {
		r.blockQueue[dbKey] = rest
	}
	r.owner[dbKey] = next.client
	r.heldLocks[next.client] = append(r.heldLocks[next.client], dbKey)
	r.mu.Unlock()
	next.ready <- true
}

// ReleaseAll releases every lock client holds, running handoff for each —
// the disconnect path in releaseClientLocks.
func (r *Registry) ReleaseAll(client core.ClientID, deletePlaceholder DeletePlaceholder) {
	r.mu.Lock()
	keys := append([]core.DBKey(nil), r.heldLocks[client]...)
	r.mu.Unlock()
	for _, dbKey := range keys {
		r.Release(client, dbKey, deletePlaceholder)
	}
}

// Owner reports the current lock owner for dbKey, if any.
func (r *Registry) Owner(dbKey core.DBKey) (core.ClientID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owner[dbKey]
	return owner, ok
}

func removeDBKey(keys []core.DBKey, target core.DBKey) []core.DBKey {
	out := keys[:0]
	for _, k := range keys {
		if k != target {
			out = append(out, k)
		}
	}
	return out
}

func removeWaiter(waiters []waiter, client core.ClientID) []waiter {
	out := waiters[:0]
	for _, w := range waiters {
		if w.client != client {
			out = append(out, w)
		}
	}
	return out
}
