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

// Package reactor implements the event-loop integration:
// it runs the completion dispatcher and the cache cron concurrently and
// wires the dispatcher's ready-clients output to per-client wake channels,
// the Go equivalent of "the reactor after running any command walks
// ready_clients to resume clients freed by that command's side effects".
// dispatch.Run and cron.Run each already implement their own internal
// blocking select loop (one over completions, one over a ticker), so
// unlike the original's single-threaded multiplexer there is no shared
// hot-loop state left to interleave by hand; golang.org/x/sync/errgroup
// (internal/msggateway's concurrency-glue idiom, already used in
// internal/dscache/iopool) runs both to completion and propagates either's
// error.
package reactor
