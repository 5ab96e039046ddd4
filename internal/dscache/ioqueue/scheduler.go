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
	"container/list"
	"sync"
	"time"

	"github.com/dscache/corekv/internal/dscache/core"
)

// JobQueueCap is MAX_IO_JOBS_QUEUE from original_source/src/dscache.c.
const JobQueueCap = 10

// PushMode selects push_jobs' optional behaviours.
type PushMode struct {
	// OnlyLoads stops at the first SAVE encountered at the schedule head.
	OnlyLoads bool
	// ASAP bypasses the flush-delay coalescing window for SAVEs.
	ASAP bool
}

// LookupForSave resolves the current resident value for a SAVE op at push
// time. ok is false only if the key somehow isn't resident and isn't a
// pending delete either, which should not happen in practice; tombstone
// true encodes a delete ("a SAVE with snapshot = ∅").
type LookupForSave func(dbKey core.DBKey) (snapshot core.Handle, expiry time.Time, tombstone bool, ok bool)

// PushTrigger is invoked after ScheduleIO enqueues a LOAD, so a caller can
// immediately try to drain loads through the pipeline, matching
// cacheScheduleIO's direct call into cacheScheduleIOPushJobs for the LOAD
// case.
type PushTrigger func()

// Scheduler holds the global schedule FIFO and the per-key io_flags map.
type Scheduler struct {
	mu           sync.Mutex
	flags        map[core.DBKey]core.IOFlags
	schedule     *list.List
	ops          map[core.DBKey]map[core.IOKind]*list.Element
	snapshotting bool
	flushDelay   time.Duration
	trigger      PushTrigger
}

// New creates an empty scheduler. flushDelay is cache_flush_delay
// (the configuration table).
func New(flushDelay time.Duration) *Scheduler {
	return &Scheduler{
		flags:      make(map[core.DBKey]core.IOFlags),
		schedule:   list.New(),
		ops:        make(map[core.DBKey]map[core.IOKind]*list.Element),
		flushDelay: flushDelay,
	}
}

// SetPushTrigger installs the callback ScheduleIO fires after enqueuing a
// LOAD. Call before the scheduler is used concurrently.
func (s *Scheduler) SetPushTrigger(trigger PushTrigger) { s.trigger = trigger }

// Flags peeks at the pending/in-flight bitset for dbKey.
func (s *Scheduler) Flags(dbKey core.DBKey) core.IOFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[dbKey]
}

// IsBusy reports whether any I/O flag is set for dbKey, the predicate
// objcache's eviction sampler uses to skip a key with in-flight I/O.
func (s *Scheduler) IsBusy(dbKey core.DBKey) bool {
	return s.Flags(dbKey).Any()
}

// ScheduleLen reports the number of ops currently waiting in schedule,
// used by C9 to decide whether a stalled eviction pass can still drain one
// job for progress.
func (s *Scheduler) ScheduleLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule.Len()
}

// SetSnapshotting toggles the background-save flag: while true,
// PushJobs is a no-op for every op.
func (s *Scheduler) SetSnapshotting(on bool) {
	s.mu.Lock()
	s.snapshotting = on
	s.mu.Unlock()
}

// IsSnapshotting reports the current background-save flag.
func (s *Scheduler) IsSnapshotting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotting
}

// ScheduleIO implements schedule_io: it is a no-op if kind
// is already pending for dbKey (at most one op of a kind per key is ever
// pending), otherwise it enqueues a new op, giving LOADs head priority over a
// key with no pending SAVE, and immediately asks the push trigger to try
// draining loads.
func (s *Scheduler) ScheduleIO(dbKey core.DBKey, kind core.IOKind, now time.Time) bool {
	s.mu.Lock()
	cur := s.flags[dbKey]
	if cur.Has(kind.PendingFlag()) {
		s.mu.Unlock()
		return false
	}
	s.flags[dbKey] = cur | kind.PendingFlag()

	op := &core.ScheduledOp{DBKey: dbKey, Kind: kind, CreationTS: now}
	var e *list.Element
	if kind == core.Load && !cur.Has(core.FlagSave) {
		e = s.schedule.PushFront(op)
	} else {
		e = s.schedule.PushBack(op)
	}
	byKind, ok := s.ops[dbKey]
	if !ok {
		byKind = make(map[core.IOKind]*list.Element)
		s.ops[dbKey] = byKind
	}
	byKind[kind] = e
	s.mu.Unlock()

	if kind == core.Load && s.trigger != nil {
		s.trigger()
	}
	return true
}

// PushJobs implements push_jobs: it drains up to
// roomAvailable eligible ops from the head of schedule into IO jobs,
// respecting SAVE flush-delay coalescing, rotating a SAVE blocked on a
// prior in-flight SAVE of the same key to the tail, and refusing to push
// anything at all while a background snapshot is in progress.
func (s *Scheduler) PushJobs(now time.Time, roomAvailable int, mode PushMode, lookup LookupForSave) []core.IOJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotting || roomAvailable <= 0 {
		return nil
	}
	if roomAvailable > s.schedule.Len() {
		roomAvailable = s.schedule.Len()
	}

	var jobs []core.IOJob
	room := roomAvailable
	examined := 0
	maxExamine := s.schedule.Len()

	for room > 0 && examined < maxExamine {
		e := s.schedule.Front()
		if e == nil {
			break
		}
		op := e.Value.(*core.ScheduledOp)

		if mode.OnlyLoads && op.Kind == core.Save {
			break
		}
		if op.Kind == core.Save && !mode.ASAP && now.Sub(op.CreationTS) < s.flushDelay {
			break
		}
		if op.Kind == core.Save && s.flags[op.DBKey].Has(core.FlagSaveInProgress) {
			s.schedule.MoveToBack(e)
			examined++
			// "continue if other work exists, else stop": once every op
			// currently in schedule has been rotated through once without
			// producing a job, examined reaches maxExamine and the loop
			// below exits on its own.
			continue
		}

		job := core.IOJob{DBKey: op.DBKey, Kind: op.Kind}
		if op.Kind == core.Save {
			snapshot, expiry, tombstone, ok := lookup(op.DBKey)
			if ok {
				job.Snapshot = snapshot
				job.Expiry = expiry
				job.Tombstone = tombstone
			} else {
				job.Tombstone = true
			}
		}
		jobs = append(jobs, job)

		cur := s.flags[op.DBKey]
		cur &^= op.Kind.PendingFlag()
		cur |= op.Kind.InProgressFlag()
		s.flags[op.DBKey] = cur

		s.schedule.Remove(e)
		delete(s.ops[op.DBKey], op.Kind)
		if len(s.ops[op.DBKey]) == 0 {
			delete(s.ops, op.DBKey)
		}

		room--
		examined++
	}
	return jobs
}

// ClearInProgress clears the _IN_PROGRESS bit for kind once a job
// completes, called by the completion dispatcher (C6) after applying a
// job's effect.
func (s *Scheduler) ClearInProgress(dbKey core.DBKey, kind core.IOKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[dbKey] &^= kind.InProgressFlag()
	if s.flags[dbKey] == 0 {
		delete(s.flags, dbKey)
	}
}
