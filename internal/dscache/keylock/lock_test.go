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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/core"
)

func noopEnsure(core.DBKey) {}
func noopDelete(core.DBKey) {}

func TestGrabIsReentrant(t *testing.T) {
	r := New()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, r.Grab("c1", dbKey, 0, noopEnsure))
	assert.True(t, r.Grab("c1", dbKey, 0, noopEnsure))
}

func TestReleaseByNonOwnerFails(t *testing.T) {
	r := New()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, r.Grab("c1", dbKey, 0, noopEnsure))
	assert.False(t, r.Release("c2", dbKey, noopDelete))
}

func TestReleaseWithNoWaitersDeletesPlaceholder(t *testing.T) {
	r := New()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, r.Grab("c1", dbKey, 0, noopEnsure))

	var deleted bool
	assert.True(t, r.Release("c1", dbKey, func(core.DBKey) { deleted = true }))
	assert.True(t, deleted)

	_, owned := r.Owner(dbKey)
	assert.False(t, owned)
}

// TestHandoffIsFIFO reproduces a FIFO handoff scenario: clients A,B,C queue
// in that order on a key D holds; successive releases grant it to A, B,
// then C.
func TestHandoffIsFIFO(t *testing.T) {
	r := New()
	dbKey := core.DBKey{DB: 0, Key: "k"}

	require.True(t, r.Grab("D", dbKey, 0, noopEnsure))

	var wg sync.WaitGroup
	order := make(chan core.ClientID, 3)
	for _, client := range []core.ClientID{"A", "B", "C"} {
		wg.Add(1)
		go func(c core.ClientID) {
			defer wg.Done()
			if r.Grab(c, dbKey, 5*time.Second, noopEnsure) {
				order <- c
			}
		}(client)
	}
	time.Sleep(50 * time.Millisecond) // let all three queue up behind D

	require.True(t, r.Release("D", dbKey, noopDelete))
	assert.Equal(t, core.ClientID("A"), <-order)

	require.True(t, r.Release("A", dbKey, noopDelete))
	assert.Equal(t, core.ClientID("B"), <-order)

	require.True(t, r.Release("B", dbKey, noopDelete))
	assert.Equal(t, core.ClientID("C"), <-order)

	wg.Wait()
	owner, owned := r.Owner(dbKey)
	require.True(t, owned)
	assert.Equal(t, core.ClientID("C"), owner)
}

func TestGrabTimesOutAndLeavesQueue(t *testing.T) {
	r := New()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, r.Grab("owner", dbKey, 0, noopEnsure))

	start := time.Now()
	granted := r.Grab("waiter", dbKey, 20*time.Millisecond, noopEnsure)
	assert.False(t, granted)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	var deleted bool
	require.True(t, r.Release("owner", dbKey, func(core.DBKey) { deleted = true }))
	assert.True(t, deleted, "timed-out waiter must not receive the handoff")
}

func TestReleaseAllHandsOffEveryHeldLock(t *testing.T) {
	r := New()
	keyA := core.DBKey{DB: 0, Key: "a"}
	keyB := core.DBKey{DB: 0, Key: "b"}
	require.True(t, r.Grab("c1", keyA, 0, noopEnsure))
	require.True(t, r.Grab("c1", keyB, 0, noopEnsure))

	waiterReady := make(chan bool, 1)
	go func() {
		waiterReady <- r.Grab("c2", keyA, 5*time.Second, noopEnsure)
	}()
	time.Sleep(20 * time.Millisecond)

	r.ReleaseAll("c1", noopDelete)
	assert.True(t, <-waiterReady)
	owner, _ := r.Owner(keyA)
	assert.Equal(t, core.ClientID("c2"), owner)
	_, owned := r.Owner(keyB)
	assert.False(t, owned)
}
