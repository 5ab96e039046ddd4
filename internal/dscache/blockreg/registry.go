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

package blockreg

import (
	"sync"
	"time"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
)

// IsLiveFunc reports whether dbKey is currently resident.
type IsLiveFunc func(dbKey core.DBKey) bool

// MayExistFunc reports whether dbKey is not known to be absent on disk.
type MayExistFunc func(dbKey core.DBKey) bool

// Registry is the per-process blocking-key state for every database.
type Registry struct {
	mu         sync.Mutex
	waitedKeys map[core.ClientID][]core.DBKey
	waiters    map[core.DBKey][]core.ClientID
	scheduler  *ioqueue.Scheduler
}

// New creates an empty registry. scheduler is used to schedule a LOAD the
// first time a client blocks on a key no other client is already waiting
// on (wait_for).
func New(scheduler *ioqueue.Scheduler) *Registry {
	return &Registry{
		waitedKeys: make(map[core.ClientID][]core.DBKey),
		waiters:    make(map[core.DBKey][]core.ClientID),
		scheduler:  scheduler,
	}
}

// WaitFor implements wait_for. It returns false
// (NotBlocked) if the key is already live or is known absent, otherwise it
// registers client as a waiter and returns true (Blocked).
func (r *Registry) WaitFor(client core.ClientID, dbKey core.DBKey, isLive IsLiveFunc, mayExist MayExistFunc, now time.Time) bool {
	if isLive(dbKey) {
		return false
	}
	if !mayExist(dbKey) {
		return false
	}

	r.mu.Lock()
	r.waitedKeys[client] = append(r.waitedKeys[client], dbKey)
	_, existed := r.waiters[dbKey]
	r.waiters[dbKey] = append(r.waiters[dbKey], client)
	r.mu.Unlock()

	if !existed {
		r.scheduler.ScheduleIO(dbKey, core.Load, now)
	}
	return true
}

// BlockMulti calls WaitFor for every key a multi-key command touches,
// standing in for block_multi's command-descriptor-table key resolution
// — see doc.go for why argv-position parsing has no
// analogue here. It returns true if the client blocked on at least one
// key.
func (r *Registry) BlockMulti(client core.ClientID, dbKeys []core.DBKey, isLive IsLiveFunc, mayExist MayExistFunc, now time.Time) bool {
	blocked := false
	for _, dbKey := range dbKeys {
		if r.WaitFor(client, dbKey, isLive, mayExist, now) {
			blocked = true
		}
	}
	return blocked
}

// ReleaseKey implements release_key: it removes key from
// client's waited list and client from the key's waiter list, reporting
// whether the client's waited-key list is now empty.
func (r *Registry) ReleaseKey(client core.ClientID, dbKey core.DBKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := removeDBKey(r.waitedKeys[client], dbKey)
	if len(keys) == 0 {
		delete(r.waitedKeys, client)
	} else {
		r.waitedKeys[client] = keys
	}

	clients := removeClient(r.waiters[dbKey], client)
	if len(clients) == 0 {
		delete(r.waiters, dbKey)
	} else {
		r.waiters[dbKey] = clients
	}

	_, stillWaiting := r.waitedKeys[client]
	return !stillWaiting
}

// OnKeyLoaded implements on_key_loaded: every client
// waiting on dbKey is released from it; any client whose waited-key list
// becomes empty as a result is returned, ready for the reactor to
// re-dispatch.
func (r *Registry) OnKeyLoaded(dbKey core.DBKey) []core.ClientID {
	r.mu.Lock()
	waiting := append([]core.ClientID(nil), r.waiters[dbKey]...)
	r.mu.Unlock()

	var ready []core.ClientID
	for _, client := range waiting {
		if r.ReleaseKey(client, dbKey) {
			ready = append(ready, client)
		}
	}
	return ready
}

// Disconnect purges every key client was waiting on, for the disconnect
// error-handling path ("purge the client from every
// waiters[db][k] ... list").
func (r *Registry) Disconnect(client core.ClientID) {
	r.mu.Lock()
	keys := append([]core.DBKey(nil), r.waitedKeys[client]...)
	r.mu.Unlock()

	for _, dbKey := range keys {
		r.ReleaseKey(client, dbKey)
	}
}

// WaitedKeys returns a snapshot of the keys client is currently blocked
// on, used by tests asserting that a ready client's waited-key list is empty.
func (r *Registry) WaitedKeys(client core.ClientID) []core.DBKey {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.DBKey(nil), r.waitedKeys[client]...)
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

func removeClient(clients []core.ClientID, target core.ClientID) []core.ClientID {
	out := clients[:0]
	for _, c := range clients {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}
