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

// Package negcache implements the negative cache (C2): a per-DB record of
// keys recently confirmed absent on disk, used to short-circuit repeated
// LOADs. Entries carry a timestamp and are evicted approximately — three
// random entries from a random non-empty DB are sampled and the oldest of
// the three is dropped, matching negativeCacheEvictOneEntry in
// original_source/src/dscache.c.
package negcache
