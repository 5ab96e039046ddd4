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

// Package objcache implements the object cache (C3): the in-memory
// resident set, keyed per database, with an approximate-LRU eviction
// sampler. The resident map is hand-rolled rather than built on
// hashicorp/golang-lru because try_evict_one needs
// sample-five-then-pick-highest-idle semantics with a shared sampling
// budget across every database in one call, a policy no LRU library in
// the dependency pack exposes — see DESIGN.md's stdlib-only justification.
package objcache
