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

package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/openimsdk/tools/log"
)

// MetricsHandler is implemented by *metrics.Collector.
type MetricsHandler interface {
	Handler() http.Handler
}

// HealthFunc reports the engine's health; a non-nil error is surfaced as
// a 503 with the error text.
type HealthFunc func() error

// Server is the admin HTTP server.
type Server struct {
	httpServer *http.Server
}

// New builds the admin server. It does not start listening until Run is
// called.
func New(addr string, metricsHandler MetricsHandler, health HealthFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		if health == nil {
			c.Status(http.StatusOK)
			return
		}
		if err := health(); err != nil {
			c.String(http.StatusServiceUnavailable, err.Error())
			return
		}
		c.Status(http.StatusOK)
	})

	if metricsHandler != nil {
		h := metricsHandler.Handler()
		r.GET("/metrics", gin.WrapH(h))
	}

	return &Server{httpServer: &http.Server{Addr: addr, Handler: r}}
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully with a bounded timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.ZError(shutdownCtx, "admin server shutdown", err)
			return err
		}
		return nil
	}
}
