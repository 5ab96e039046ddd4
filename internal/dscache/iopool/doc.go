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

// Package iopool implements the IO thread pool (C5): a bounded set of
// worker goroutines that execute disk get/set/del calls and report
// completions back to the main goroutine. This package starts a
// fixed-size pool up front (the shape
// internal/msgtransfer/online_history_msg_handler.go uses for its own
// worker=50 pool) because idle goroutines blocked on a channel receive
// cost nothing extra, and a fixed pool avoids a spawn-accounting mutex for
// no behavioural difference. Shutdown is cooperative via context.Context
// and golang.org/x/sync/errgroup; a fatal disk error is reported to the
// caller through FatalIOHandler rather than terminating the process.
package iopool
