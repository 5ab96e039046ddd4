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

// Package keylock implements the per-key advisory locks (C8): GRAB,
// RELEASE, FIFO handoff on release, and bulk release on disconnect,
// translated line-for-line in spirit from
// original_source/src/locking.c's grabLockForKey / releaseLockForKey /
// handOffLock / releaseClientLocks. A blocked GRAB call parks its calling
// goroutine on a buffered channel rather than suspending a reactor-managed
// client state machine — the idiomatic Go equivalent of the
// "map to tasks on a reactor runtime or plain OS threads", since a
// goroutine already is a lightweight task the Go runtime schedules.
package keylock
