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

// Package ioqueue implements the I/O scheduler (C4): the global FIFO of
// scheduled operations plus the per-key io_flags bitset, grounded on
// cacheScheduleIO / cacheScheduleIOPushJobs in
// original_source/src/dscache.c. The FIFO is a container/list.List rather
// than a pack library because it needs O(1) head/tail/rotate-to-tail
// operations on scheduled ops by element handle, the same shape the
// original gets from adlist.c's doubly linked list.
package ioqueue
