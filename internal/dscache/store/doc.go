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

// Package store implements the disk store (C1): a persistent key→(value,
// expiry) map backed by MongoDB, exposing the three blocking operations
// invoked only from worker threads: Get, Set and
// Delete. Set is atomic against crash at the storage-engine level because
// it is a single-document ReplaceOne — see DESIGN.md's open question on
// resolution for why no write-then-rename discipline is needed here.
package store
