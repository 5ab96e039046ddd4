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

// Package blockreg implements the blocking-key registry (C7): the
// per-client waited-key list and the per-database key→waiter-list map,
// grounded on waitForSwappedKey / handleClientsBlockedOnSwappedKey in
// original_source/src/dscache.c. Registry takes the object-cache and
// negative-cache lookups as callback functions rather than importing
// those packages directly, the same dependency-inversion shape
// pkg/rpccache/online.go uses to decouple its sync.Cond phase gate from
// the concrete cache it guards.
//
// block_multi (argv-position parsing via a command descriptor
// table) has no analogue here: the RESP command dispatcher is explicitly
// out of scope, so callers already know which keys
// a Go call site touches and pass them directly to BlockMulti.
package blockreg
