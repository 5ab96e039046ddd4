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

// Package cron implements the cache cron (C9): a fast time.Ticker-driven
// hot loop reproducing cacheCron's "push_jobs(0), then evict until no
// progress" algorithm from original_source/src/dscache.c, plus a separate
// once-a-minute robfig/cron/v3 sweep doing a negative-cache GC pass and
// logging resident/negative key counts. Real process RSS from
// github.com/shirou/gopsutil feeds the memory-budget comparison the
// original does with its own allocator-tracked `used_memory` counter —
// this process has no such counter of its own, and RSS is the nearest
// analogue a Go process can read cheaply.
package cron
