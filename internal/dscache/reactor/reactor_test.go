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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dscache/corekv/internal/dscache/core"
)

func TestNotifierWakesOnlyNamedClients(t *testing.T) {
	n := NewNotifier()
	chA := n.Await("a")
	chB := n.Await("b")

	n.Wake([]core.ClientID{"a"})

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("a should have been woken")
	}
	select {
	case <-chB:
		t.Fatal("b should not have been woken")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestReactorRunStopsWhenContextCancelled(t *testing.T) {
	blocked := AsRunner(func(ctx context.Context) { <-ctx.Done() })
	r := New(blocked, blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.Run(ctx)
	assert.NoError(t, err)
}

func TestReactorRunPropagatesRunnerError(t *testing.T) {
	boom := errors.New("boom")
	failing := Runner(failingRunner{err: boom})
	blocked := AsRunner(func(ctx context.Context) { <-ctx.Done() })
	r := New(failing, blocked)

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, boom, err)
}

type failingRunner struct{ err error }

func (f failingRunner) Run(ctx context.Context) error { return f.err }
