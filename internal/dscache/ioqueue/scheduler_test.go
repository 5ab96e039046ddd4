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

package ioqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/core"
)

func noSnapshotLookup(core.DBKey) (core.Handle, time.Time, bool, bool) {
	return core.Handle{}, time.Time{}, true, true
}

func TestScheduleIODedupsSameKind(t *testing.T) {
	s := New(time.Second)
	now := time.Now()
	dbKey := core.DBKey{DB: 0, Key: "k"}

	assert.True(t, s.ScheduleIO(dbKey, core.Load, now))
	assert.False(t, s.ScheduleIO(dbKey, core.Load, now))
	assert.Equal(t, 1, s.ScheduleLen())
}

func TestLoadGetsHeadPriorityOverPendingSave(t *testing.T) {
	s := New(time.Second)
	now := time.Now()

	keyA := core.DBKey{DB: 0, Key: "a"}
	keyB := core.DBKey{DB: 0, Key: "b"}
	require.True(t, s.ScheduleIO(keyA, core.Save, now))
	require.True(t, s.ScheduleIO(keyB, core.Load, now))

	jobs := s.PushJobs(now, JobQueueCap, PushMode{ASAP: true}, noSnapshotLookup)
	require.Len(t, jobs, 2)
	assert.Equal(t, keyB, jobs[0].DBKey)
	assert.Equal(t, core.Load, jobs[0].Kind)
}

func TestPushJobsRespectsFlushDelay(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, s.ScheduleIO(dbKey, core.Save, now))

	jobs := s.PushJobs(now, JobQueueCap, PushMode{}, noSnapshotLookup)
	assert.Empty(t, jobs)

	later := now.Add(2 * time.Minute)
	jobs = s.PushJobs(later, JobQueueCap, PushMode{}, noSnapshotLookup)
	require.Len(t, jobs, 1)
	assert.Equal(t, dbKey, jobs[0].DBKey)
}

func TestPushJobsASAPBypassesFlushDelay(t *testing.T) {
	s := New(time.Hour)
	now := time.Now()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, s.ScheduleIO(dbKey, core.Save, now))

	jobs := s.PushJobs(now, JobQueueCap, PushMode{ASAP: true}, noSnapshotLookup)
	require.Len(t, jobs, 1)
}

func TestPushJobsOnlyLoadsStopsAtSaveHead(t *testing.T) {
	s := New(0)
	now := time.Now()
	keyA := core.DBKey{DB: 0, Key: "a"}
	keyB := core.DBKey{DB: 0, Key: "b"}
	require.True(t, s.ScheduleIO(keyA, core.Save, now))
	require.True(t, s.ScheduleIO(keyB, core.Save, now))

	jobs := s.PushJobs(now, JobQueueCap, PushMode{OnlyLoads: true, ASAP: true}, noSnapshotLookup)
	assert.Empty(t, jobs)
}

func TestPushJobsRoomBound(t *testing.T) {
	s := New(0)
	now := time.Now()
	for i := 0; i < 5; i++ {
		dbKey := core.DBKey{DB: 0, Key: core.Key(string(rune('a' + i)))}
		require.True(t, s.ScheduleIO(dbKey, core.Load, now))
	}
	jobs := s.PushJobs(now, 3, PushMode{ASAP: true}, noSnapshotLookup)
	assert.Len(t, jobs, 3)
	assert.Equal(t, 2, s.ScheduleLen())
}

func TestPushJobsNoOpWhileSnapshotting(t *testing.T) {
	s := New(0)
	now := time.Now()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	require.True(t, s.ScheduleIO(dbKey, core.Load, now))

	s.SetSnapshotting(true)
	jobs := s.PushJobs(now, JobQueueCap, PushMode{ASAP: true}, noSnapshotLookup)
	assert.Empty(t, jobs)
	assert.Equal(t, 1, s.ScheduleLen())
}

func TestScheduleIOTriggersPushOnLoad(t *testing.T) {
	s := New(0)
	var fired bool
	s.SetPushTrigger(func() { fired = true })
	s.ScheduleIO(core.DBKey{DB: 0, Key: "k"}, core.Load, time.Now())
	assert.True(t, fired)
}

func TestClearInProgressRemovesEmptyFlagEntry(t *testing.T) {
	s := New(0)
	now := time.Now()
	dbKey := core.DBKey{DB: 0, Key: "k"}
	s.ScheduleIO(dbKey, core.Load, now)
	jobs := s.PushJobs(now, JobQueueCap, PushMode{ASAP: true}, noSnapshotLookup)
	require.Len(t, jobs, 1)
	assert.True(t, s.Flags(dbKey).Has(core.FlagLoadInProgress))

	s.ClearInProgress(dbKey, core.Load)
	assert.Equal(t, core.IOFlags(0), s.Flags(dbKey))
}
