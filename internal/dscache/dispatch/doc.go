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

// Package dispatch implements the completion dispatcher (C6):
// vmThreadedIOCompletedJob's per-wake "pop a tenth of what's pending, apply
// it, clear the in-progress flag, resume blocked clients" loop, translated
// onto iopool.Pool.Completions() in place of reading a self-pipe byte at a
// time. Dispatcher is the only component allowed to mutate objcache/negcache
// state from completions: no IO mutex is held while doing so, because
// every apply call runs from the single goroutine driving Run, never from
// an iopool worker.
package dispatch
