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

// Package rocks adds a distributed load-coalescing layer in front of the
// disk store, for deployments running more than one dscache process
// against the same MongoDB backing store. It is not part of the core
// single-process core (C1-C10 are explicitly single-process); it exists
// so that a concurrent LOAD miss for the same key arriving on two
// processes at once still only costs one Mongo round trip, the same
// guarantee ioqueue/iopool already give within a single process.
package rocks
