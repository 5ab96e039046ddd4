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

package config

import (
	"time"

	"github.com/openimsdk/tools/db/mongoutil"
	"github.com/openimsdk/tools/db/redisutil"
)

// Mongo is the disk store's backing database connection.
type Mongo struct {
	URI         string   `mapstructure:"uri"`
	Address     []string `mapstructure:"address"`
	Database    string   `mapstructure:"database" validate:"required"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	AuthSource  string   `mapstructure:"authSource"`
	MaxPoolSize int      `mapstructure:"maxPoolSize" validate:"gte=0"`
	MaxRetry    int      `mapstructure:"maxRetry" validate:"gte=0"`
}

func (m *Mongo) Build() *mongoutil.Config {
	return &mongoutil.Config{
		Uri:         m.URI,
		Address:     m.Address,
		Database:    m.Database,
		Username:    m.Username,
		Password:    m.Password,
		AuthSource:  m.AuthSource,
		MaxPoolSize: m.MaxPoolSize,
		MaxRetry:    m.MaxRetry,
	}
}

// Redis is optional: nil-equivalent (Enable=false) disables every
// distributed feature — the load-cache mirror, the negative-cache mirror,
// and cross-process WATCH touches — and the engine runs single-process.
type Redis struct {
	Enable      bool     `mapstructure:"enable"`
	Address     []string `mapstructure:"address"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	ClusterMode bool     `mapstructure:"clusterMode"`
	DB          int      `mapstructure:"storage"`
	MaxRetry    int      `mapstructure:"maxRetry" validate:"gte=0"`
	PoolSize    int      `mapstructure:"poolSize" validate:"gte=0"`
}

func (r *Redis) Build() *redisutil.Config {
	return &redisutil.Config{
		ClusterMode: r.ClusterMode,
		Address:     r.Address,
		Username:    r.Username,
		Password:    r.Password,
		DB:          r.DB,
		MaxRetry:    r.MaxRetry,
		PoolSize:    r.PoolSize,
	}
}

// Log mirrors the shape github.com/openimsdk/tools/log expects, since
// github.com/openimsdk/tools/log is configured the same way regardless of
// which binary starts it.
type Log struct {
	StorageLocation string `mapstructure:"storageLocation"`
	RotationTime    uint   `mapstructure:"rotationTime" validate:"gte=1"`
	RemainRotationCount uint `mapstructure:"remainRotationCount" validate:"gte=1"`
	RemainLogLevel  int    `mapstructure:"remainLogLevel"`
	IsStdout        bool   `mapstructure:"isStdout"`
	IsJson           bool   `mapstructure:"isJson"`
	WithStack        bool   `mapstructure:"withStack"`
}

// Prometheus is decoded and validated but not read by dscached: the admin
// server always mounts /metrics on Admin.ListenAddr, whatever Enable and
// Port say.
type Prometheus struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// Admin controls the admin HTTP server (health, metrics).
type Admin struct {
	ListenAddr string `mapstructure:"listenAddr" validate:"required"`
}

// Engine bundles every tunable the cache engine exposes, in the units Go
// callers expect (time.Duration rather than bare integer seconds).
type Engine struct {
	CacheMaxMemory      uint64        `mapstructure:"cacheMaxMemory"`
	CacheFlushDelaySecs  int          `mapstructure:"cacheFlushDelaySeconds" validate:"gte=0"`
	IOThreadsMax        int           `mapstructure:"ioThreadsMax" validate:"gte=1"`
	CronTickMillis       int           `mapstructure:"cronTickMilliseconds" validate:"gte=1"`
	NegCacheMaxEntries   int           `mapstructure:"negCacheMaxEntries" validate:"gte=0"`
	LoadCacheTTLSecs     int           `mapstructure:"loadCacheTTLSeconds" validate:"gte=0"`
	WatchNamespace       string        `mapstructure:"watchNamespace"`
	NegCacheNamespace    string        `mapstructure:"negCacheNamespace"`
}

func (e *Engine) CacheFlushDelay() time.Duration { return time.Duration(e.CacheFlushDelaySecs) * time.Second }
func (e *Engine) CronTick() time.Duration         { return time.Duration(e.CronTickMillis) * time.Millisecond }
func (e *Engine) LoadCacheTTL() time.Duration     { return time.Duration(e.LoadCacheTTLSecs) * time.Second }

// Config is the full dscached process configuration, the single struct
// LoadConfig unmarshals a YAML file into.
type Config struct {
	Mongo      Mongo      `mapstructure:"mongo"`
	Redis      Redis      `mapstructure:"redis"`
	Log        Log        `mapstructure:"log"`
	Prometheus Prometheus `mapstructure:"prometheus"`
	Admin      Admin      `mapstructure:"admin"`
	Engine     Engine     `mapstructure:"engine"`
}
