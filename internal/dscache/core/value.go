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

import "sync/atomic"

// idleClockBits is the width of the wrapping minute-resolution idle clock.
// 1<<24 minutes is roughly 32 years, long enough that wraparound only ever
// affects the idle *distance* computation, never correctness of which way
// is "more idle" within one eviction pass.
const idleClockBits = 24
const idleClockMask = 1<<idleClockBits - 1

// LRUClock returns the current minute-resolution clock value, wrapped to
// idleClockBits. Components compare two LRUClock readings with IdleSince,
// never by subtracting raw values, so wraparound never surfaces.
func LRUClock(nowUnixMinutes int64) uint32 {
	return uint32(nowUnixMinutes) & idleClockMask
}

// IdleSince returns how many clock ticks have elapsed between a stamp
// recorded at `then` and the current clock reading `now`, correctly
// handling a single wrap of the 24-bit counter.
func IdleSince(now, then uint32) uint32 {
	if now >= then {
		return now - then
	}
	return (idleClockMask + 1 - then) + now
}

// Value is the opaque payload the cache carries. Ownership is modelled
// explicitly ("shared mutable value nodes with raw
// refcounts"): a Value is never copied or mutated in place once
// constructed. Every holder — the resident set, an in-flight SAVE job —
// acquires a Handle and releases it when done; the underlying value is
// reclaimed by the garbage collector once every Handle referencing it has
// been dropped and no Go reference survives, so refs here exists purely to
// let tests observe that the refcount stays at or above 2 while a value is
// both resident and in-flight, not to manage memory by hand.
type Value struct {
	Payload   []byte
	lruClock  uint32
	refs      int32
	onDropped func()
}

// NewValue constructs a fresh value with no references yet; Acquire
// creates its first handle.
func NewValue(payload []byte, nowUnixMinutes int64) *Value {
	return &Value{
		Payload:  payload,
		lruClock: LRUClock(nowUnixMinutes),
	}
}

// Touch refreshes the idle clock, called whenever a command accesses the
// value through the object cache.
func (v *Value) Touch(nowUnixMinutes int64) {
	atomic.StoreUint32(&v.lruClock, LRUClock(nowUnixMinutes))
}

// Idle reports how many clock ticks have elapsed since the value was last
// touched, relative to nowUnixMinutes.
func (v *Value) Idle(nowUnixMinutes int64) uint32 {
	return IdleSince(LRUClock(nowUnixMinutes), atomic.LoadUint32(&v.lruClock))
}

// RefCount reports the number of outstanding handles, for refcount
// assertions in tests.
func (v *Value) RefCount() int32 { return atomic.LoadInt32(&v.refs) }

// Handle is an ownership-transferred reference to a Value. The zero Handle
// is not valid; obtain one via NewValue().Acquire() or an existing
// Handle's Clone().
type Handle struct {
	v *Value
}

// Acquire creates the first handle for a freshly constructed value.
func (v *Value) Acquire() Handle {
	atomic.AddInt32(&v.refs, 1)
	return Handle{v: v}
}

// Clone acquires a second independent handle to the same value, used when
// an I/O job needs to hold a snapshot that is also resident in the object
// cache.
func (h Handle) Clone() Handle {
	atomic.AddInt32(&h.v.refs, 1)
	return Handle{v: h.v}
}

// Value returns the underlying payload without transferring ownership.
func (h Handle) Value() *Value { return h.v }

// Release drops this handle's reference. Once the last handle is released
// the optional onDropped hook runs (tests use this to observe that a value
// with refs==2 while both resident and in an in-flight SAVE drops to 0 only
// after both handles are released, never before).
func (h Handle) Release() {
	if h.v == nil {
		return
	}
	if atomic.AddInt32(&h.v.refs, -1) == 0 && h.v.onDropped != nil {
		h.v.onDropped()
	}
}

// OnDropped installs a callback invoked when the value's reference count
// reaches zero. Intended for tests; production callers have no need to
// observe collection since the GC reclaims the payload regardless.
func (v *Value) OnDropped(fn func()) { v.onDropped = fn }
