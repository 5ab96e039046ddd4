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

package reactor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Runner is implemented by *cron.Cron (Run returns an error).
// *dispatch.Dispatcher's Run returns nothing, so it is adapted with
// AsRunner; the reactor then treats both the same way.
type Runner interface {
	Run(ctx context.Context) error
}

// runnerFunc adapts a dispatch.Dispatcher-shaped `Run(ctx)` method (no
// return value) to Runner.
type runnerFunc func(ctx context.Context)

func (f runnerFunc) Run(ctx context.Context) error {
	f(ctx)
	return nil
}

// AsRunner wraps a void Run(ctx) method — *dispatch.Dispatcher's shape —
// as a Runner.
func AsRunner(run func(ctx context.Context)) Runner {
	return runnerFunc(run)
}

// Reactor drives every background loop the engine needs under one
// errgroup: the completion dispatcher and the cache cron, typically, each
// wrapped into a Runner.
type Reactor struct {
	runners []Runner
}

// New builds a reactor over the given runners.
func New(runners ...Runner) *Reactor {
	return &Reactor{runners: runners}
}

// Run starts every runner concurrently and blocks until ctx is cancelled
// or one of them returns a non-nil error, at which point the others are
// cancelled too.
func (r *Reactor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range r.runners {
		runner := runner
		g.Go(func() error { return runner.Run(gctx) })
	}
	return g.Wait()
}
