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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/core"
	"github.com/dscache/corekv/internal/dscache/ioqueue"
)

func TestWaitForReturnsNotBlockedWhenLive(t *testing.T) {
	r := New(ioqueue.New(time.Second))
	blocked := r.WaitFor("c1", core.DBKey{DB: 0, Key: "k"},
		func(core.DBKey) bool { return true },
		func(core.DBKey) bool { return true },
		time.Now())
	assert.False(t, blocked)
}

func TestWaitForReturnsNotBlockedWhenKnownAbsent(t *testing.T) {
	r := New(ioqueue.New(time.Second))
	blocked := r.WaitFor("c1", core.DBKey{DB: 0, Key: "k"},
		func(core.DBKey) bool { return false },
		func(core.DBKey) bool { return false },
		time.Now())
	assert.False(t, blocked)
}

func TestWaitForBlocksAndSchedulesLoadOnce(t *testing.T) {
	sched := ioqueue.New(time.Second)
	r := New(sched)
	isLive := func(core.DBKey) bool { return false }
	mayExist := func(core.DBKey) bool { return true }

	dbKey := core.DBKey{DB: 0, Key: "k"}
	assert.True(t, r.WaitFor("c1", dbKey, isLive, mayExist, time.Now()))
	assert.True(t, r.WaitFor("c2", dbKey, isLive, mayExist, time.Now()))

	assert.Equal(t, 1, sched.ScheduleLen(), "second waiter must not re-schedule the load")
}

func TestOnKeyLoadedReleasesAllWaitersInOrder(t *testing.T) {
	sched := ioqueue.New(time.Second)
	r := New(sched)
	isLive := func(core.DBKey) bool { return false }
	mayExist := func(core.DBKey) bool { return true }
	dbKey := core.DBKey{DB: 0, Key: "k"}

	require.True(t, r.WaitFor("c1", dbKey, isLive, mayExist, time.Now()))
	require.True(t, r.WaitFor("c2", dbKey, isLive, mayExist, time.Now()))

	ready := r.OnKeyLoaded(dbKey)
	assert.Equal(t, []core.ClientID{"c1", "c2"}, ready)
	assert.Empty(t, r.WaitedKeys("c1"))
	assert.Empty(t, r.WaitedKeys("c2"))
}

func TestClientWaitingOnMultipleKeysOnlyReadyWhenAllLoaded(t *testing.T) {
	sched := ioqueue.New(time.Second)
	r := New(sched)
	isLive := func(core.DBKey) bool { return false }
	mayExist := func(core.DBKey) bool { return true }
	keyA := core.DBKey{DB: 0, Key: "a"}
	keyB := core.DBKey{DB: 0, Key: "b"}

	require.True(t, r.WaitFor("c1", keyA, isLive, mayExist, time.Now()))
	require.True(t, r.WaitFor("c1", keyB, isLive, mayExist, time.Now()))

	ready := r.OnKeyLoaded(keyA)
	assert.Empty(t, ready, "client still waits on keyB")
	assert.Equal(t, []core.DBKey{keyB}, r.WaitedKeys("c1"))

	ready = r.OnKeyLoaded(keyB)
	assert.Equal(t, []core.ClientID{"c1"}, ready)
}

func TestDisconnectPurgesAllWaitedKeys(t *testing.T) {
	sched := ioqueue.New(time.Second)
	r := New(sched)
	isLive := func(core.DBKey) bool { return false }
	mayExist := func(core.DBKey) bool { return true }
	keyA := core.DBKey{DB: 0, Key: "a"}
	keyB := core.DBKey{DB: 0, Key: "b"}

	require.True(t, r.WaitFor("c1", keyA, isLive, mayExist, time.Now()))
	require.True(t, r.WaitFor("c1", keyB, isLive, mayExist, time.Now()))

	r.Disconnect("c1")
	assert.Empty(t, r.WaitedKeys("c1"))

	ready := r.OnKeyLoaded(keyA)
	assert.Empty(t, ready)
}
