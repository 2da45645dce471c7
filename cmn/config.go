// Package cmn provides common constants, types, and utilities shared by the
// master and worker daemons.
/*
 * Copyright (c) 2023-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"os"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Config is the process-wide configuration, loaded once at startup and
// thereafter accessed exclusively through GCO -- the hot fields workers poll
// every superstep are cached separately in Rom so list_execute never does
// the GCO pointer load on its fast path.
type Config struct {
	Master struct {
		Host string `json:"master_host"`
		Port int    `json:"master_port"`
	} `json:"master"`
	Worker struct {
		CommPort    int    `json:"comm_port"`
		MetricsPort int    `json:"metrics_port"`
		Hostname    string `json:"hostname"`
		Serve       bool   `json:"serve"`
	} `json:"worker"`
	NFS struct {
		BlockSize int64 `json:"nfs_block_size"`
	} `json:"nfs"`

	Net struct {
		BurstSize          int           `json:"burst_size"`
		CompressionMinSize int64         `json:"compression_min_size"`
		IdleTeardown       time.Duration `json:"idle_teardown"`
		DialTimeout        time.Duration `json:"dial_timeout"`
	} `json:"net"`
	Timeout struct {
		CplaneOperation time.Duration `json:"cplane_operation"`
		MaxKeepalive    time.Duration `json:"max_keepalive"`
	} `json:"timeout"`
	Log struct {
		Dir   string `json:"dir"`
		Level int    `json:"level"`
	} `json:"log"`
	TestingEnv bool `json:"testing_env"`
}

func (c *Config) setDefaults() {
	if c.Net.BurstSize == 0 {
		c.Net.BurstSize = 1024
	}
	if c.Net.CompressionMinSize == 0 {
		c.Net.CompressionMinSize = 16 * 1024
	}
	if c.Net.IdleTeardown == 0 {
		c.Net.IdleTeardown = 4 * time.Minute
	}
	if c.Net.DialTimeout == 0 {
		c.Net.DialTimeout = 10 * time.Second
	}
	if c.Timeout.CplaneOperation == 0 {
		c.Timeout.CplaneOperation = time.Second + time.Millisecond
	}
	if c.Timeout.MaxKeepalive == 0 {
		c.Timeout.MaxKeepalive = 2*time.Second + time.Millisecond
	}
	if c.NFS.BlockSize == 0 {
		c.NFS.BlockSize = 64 * 1024 * 1024
	}
}

// globalConfigOwner, exported as GCO, holds the atomically-swapped *Config
// read by every goroutine in the process.
type globalConfigOwner struct {
	c atomic.Pointer[Config]
}

var GCO globalConfigOwner

func (*globalConfigOwner) New() *Config { return &Config{} }

func (o *globalConfigOwner) Get() *Config {
	c := o.c.Load()
	if c == nil {
		panic("cmn: config accessed before GCO.Put")
	}
	return c
}

func (o *globalConfigOwner) Put(c *Config) {
	c.setDefaults()
	o.c.Store(c)
	Rom.Set(c)
}

// Load reads and decodes a JSON config file, applies defaults, installs it
// via GCO.Put, and returns the parsed Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c := GCO.New()
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(f).Decode(c); err != nil {
		return nil, err
	}
	GCO.Put(c)
	return c, nil
}
