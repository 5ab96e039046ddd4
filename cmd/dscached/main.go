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

// Command dscached runs the disk-store object cache engine as a standalone
// process: the completion dispatcher, the cache cron, and the admin HTTP
// server, all stopped together on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/openimsdk/tools/db/mongoutil"
	"github.com/openimsdk/tools/db/redisutil"
	"github.com/openimsdk/tools/log"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/dscache/corekv/internal/admin"
	"github.com/dscache/corekv/internal/dscache/engine"
	"github.com/dscache/corekv/pkg/config"
	"github.com/dscache/corekv/pkg/metrics"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "dscached",
		Short: "Run the disk-store object cache engine",
		RunE:  run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "config/dscached.yml", "path to the YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		log.ZDebug(ctx, fmt.Sprintf(format, args...))
	})); err != nil {
		log.ZWarn(ctx, "automaxprocs: failed to set GOMAXPROCS", err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	banner()

	db, err := dialMongo(ctx, cfg)
	if err != nil {
		return err
	}

	var rdb redis.UniversalClient
	if cfg.Redis.Enable {
		rdb, err = redisutil.NewRedisClient(ctx, cfg.Redis.Build())
		if err != nil {
			return err
		}
	}

	collector := metrics.New()

	eng, err := engine.New(ctx, db, rdb, engine.Config{
		CacheFlushDelay:    cfg.Engine.CacheFlushDelay(),
		IOThreadsMax:       cfg.Engine.IOThreadsMax,
		CacheMaxMemory:     cfg.Engine.CacheMaxMemory,
		CronTick:           cfg.Engine.CronTick(),
		NegCacheMaxEntries: cfg.Engine.NegCacheMaxEntries,
		LoadCacheTTL:       cfg.Engine.LoadCacheTTL(),
		WatchNamespace:     cfg.Engine.WatchNamespace,
		NegCacheNamespace:  cfg.Engine.NegCacheNamespace,
	}, collector)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	collector.GaugeFunc("resident_keys", "Number of keys currently resident in the object cache.", func() float64 {
		return float64(eng.ResidentCount())
	})
	collector.GaugeFunc("negative_cache_keys", "Number of keys currently marked absent.", func() float64 {
		return float64(eng.NegativeCacheCount())
	})
	collector.GaugeFunc("schedule_depth", "Number of I/O operations not yet dispatched.", func() float64 {
		return float64(eng.ScheduleDepth())
	})
	collector.GaugeFunc("pending_io_jobs", "Number of I/O jobs submitted to the worker pool but not yet completed.", func() float64 {
		return float64(eng.PendingIOJobs())
	})

	adminSrv := admin.New(cfg.Admin.ListenAddr, collector, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return adminSrv.Run(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.ZError(ctx, "dscached exited with error", err)
		_ = eng.Close()
		return err
	}
	return eng.Close()
}

func loadConfig(path string) (*config.Config, error) {
	var cfg config.Config
	if err := config.LoadConfig(path, "DSCACHE", &cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, nil
}

func dialMongo(ctx context.Context, cfg *config.Config) (*mongo.Database, error) {
	mgocli, err := mongoutil.NewMongoDB(ctx, cfg.Mongo.Build())
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	return mgocli.GetDB(), nil
}

func banner() {
	c := color.New(color.FgCyan, color.Bold)
	c.Println(`dscached — disk-store object cache engine`)
}
