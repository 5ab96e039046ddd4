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

package reactor

import (
	"sync"

	"github.com/dscache/corekv/internal/dscache/core"
)

// Notifier wakes a blocked client's goroutine once the reactor has resumed
// it, standing in for the original's ready_clients walk: a client parked
// in a blocking Engine call (a failed Lookup that went through C7's
// wait_for) awaits its own channel instead of being re-added to the
// reactor's runnable set.
type Notifier struct {
	mu      sync.Mutex
	waiting map[core.ClientID]chan struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{waiting: make(map[core.ClientID]chan struct{})}
}

// Await registers client as blocked and returns a channel closed the next
// time Wake names it.
func (n *Notifier) Await(client core.ClientID) <-chan struct{} {
	ch := make(chan struct{})
	n.mu.Lock()
	n.waiting[client] = ch
	n.mu.Unlock()
	return ch
}

// Wake closes the await channel for every named client still registered,
// the callback dispatch.Dispatcher invokes with blockreg.Registry's
// ready-clients list after each I/O completion.
func (n *Notifier) Wake(clients []core.ClientID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, client := range clients {
		if ch, ok := n.waiting[client]; ok {
			close(ch)
			delete(n.waiting, client)
		}
	}
}
