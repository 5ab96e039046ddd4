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

// Package watch stands in for handOffLock's "no waiter left, delete
// placeholder, signal WATCH, bump dirty" path (original_source/src/
// locking.c): a dirty-key touch fires every in-process
// watcher registered for that key, one-shot like Redis's own
// WATCH-invalidate-on-touch semantics, and optionally republishes the
// touch over a redis/go-redis/v9 PUBLISH channel so sibling processes can
// observe it too. The distributed subscriber side is grounded directly on
// pkg/rpccache/subscriber.go's subscriberRedisDeleteCache.
package watch
