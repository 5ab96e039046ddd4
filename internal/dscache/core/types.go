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

package core

import "time"

// DBID identifies one of the small set of logical databases a key lives in.
type DBID int

// Key is the resident-set key type. Values are opaque byte payloads.
type Key string

// ClientID identifies a blocked or lock-holding client. Callers choose the
// value; the core treats it as an opaque comparable.
type ClientID string

// DBKey pairs a database id with a key, used as a map key across the
// scheduler, negative cache, waiters and lock tables.
type DBKey struct {
	DB  DBID
	Key Key
}

// IOKind distinguishes a load from a save in the scheduler, the job
// pipeline and the io_flags bitset.
type IOKind uint8

const (
	// Load fetches a key's value from the disk store into the resident set.
	Load IOKind = iota
	// Save persists the resident set's current value (or its absence, for
	// a delete) back to the disk store.
	Save
)

func (k IOKind) String() string {
	if k == Load {
		return "LOAD"
	}
	return "SAVE"
}

// IOFlags is the per-key pending/in-flight bitset. There are four
// bits: LOAD, SAVE, LOAD_IN_PROGRESS, SAVE_IN_PROGRESS.
type IOFlags uint8

const (
	FlagLoad IOFlags = 1 << iota
	FlagSave
	FlagLoadInProgress
	FlagSaveInProgress
)

// Has reports whether every bit in want is set.
func (f IOFlags) Has(want IOFlags) bool { return f&want == want }

// Any reports whether any bit is set.
func (f IOFlags) Any() bool { return f != 0 }

// InProgressFlag returns the _IN_PROGRESS bit corresponding to kind.
func (k IOKind) InProgressFlag() IOFlags {
	if k == Load {
		return FlagLoadInProgress
	}
	return FlagSaveInProgress
}

// PendingFlag returns the plain pending bit corresponding to kind.
func (k IOKind) PendingFlag() IOFlags {
	if k == Load {
		return FlagLoad
	}
	return FlagSave
}

// ScheduledOp is an intent to do I/O on a key, not yet dispatched to a
// worker. At any time, for each (db,key) at most one entry of each kind
// exists across the schedule and in-progress sets combined.
type ScheduledOp struct {
	DBKey      DBKey
	Kind       IOKind
	CreationTS time.Time
}

// IOJob is a concrete unit of work handed to a worker. Snapshot holds a
// handle to the resident value at the moment the job was pushed; it is
// only meaningful for a Save of an existing key — a Save with
// Tombstone == true encodes a delete and carries no handle. The handle
// must be released once the job completes, which is what keeps the
// refcount at or above 2 while the value is both resident and in-flight.
type IOJob struct {
	DBKey     DBKey
	Kind      IOKind
	Snapshot  Handle
	Expiry    time.Time
	Tombstone bool
}
