package rpc

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Transport is a build-time plugin that can open a Caller.
//
// Transports register themselves in init():
//
//	rpc.MustRegister(rpc.Transport{ ... })
//
// The binary must import the transport package for registration to occur.
// The registry holds factories only; every Open returns a fresh Caller.
type Transport struct {
	Name        string
	Description string

	// Keys documents the config keys Open understands.
	Keys map[string]string

	// Open constructs a Caller for one endpoint. It returns an optional close
	// function.
	Open func(cfg map[string]string) (Caller, func() error, error)
}

var (
	mu         sync.RWMutex
	transports = map[string]Transport{}
)

// Register registers a transport.
func Register(t Transport) error {
	if t.Name == "" {
		return fmt.Errorf("rpc: transport name is required")
	}
	if t.Open == nil {
		return fmt.Errorf("rpc: transport %q missing Open", t.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := transports[t.Name]; exists {
		return fmt.Errorf("rpc: transport %q already registered", t.Name)
	}
	transports[t.Name] = t
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(t Transport) {
	if err := Register(t); err != nil {
		panic(err)
	}
}

// List returns the registered transports, sorted by name.
func List() []Transport {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Transport, 0, len(transports))
	for _, t := range transports {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered transport names, sorted.
func Names() []string {
	ts := List()
	n := make([]string, 0, len(ts))
	for _, t := range ts {
		n = append(n, t.Name)
	}
	return n
}

// Open opens the named transport.
func Open(name string, cfg map[string]string) (Caller, func() error, error) {
	mu.RLock()
	t, ok := transports[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("rpc: unknown transport %q (registered: %v)", name, Names())
	}
	return t.Open(cfg)
}

func init() {
	MustRegister(Transport{
		Name:        "http",
		Description: "JSON-RPC over HTTP POST",
		Keys: map[string]string{
			"url":        "endpoint URL (required)",
			"timeout":    "per-request timeout, e.g. 30s",
			"rate-limit": "requests per second, 0 disables",
			"burst":      "rate limiter burst",
		},
		Open: openHTTP,
	})
}

func openHTTP(cfg map[string]string) (Caller, func() error, error) {
	url := cfg["url"]
	if url == "" {
		return nil, nil, fmt.Errorf("rpc: http transport requires url")
	}
	var opts []HTTPOption
	if v := cfg["timeout"]; v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, nil, fmt.Errorf("rpc: http timeout: %w", err)
		}
		opts = append(opts, WithTimeout(d))
	}
	if v := cfg["rate-limit"]; v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("rpc: http rate-limit: %w", err)
		}
		burst := 1
		if b := cfg["burst"]; b != "" {
			if burst, err = strconv.Atoi(b); err != nil {
				return nil, nil, fmt.Errorf("rpc: http burst: %w", err)
			}
		}
		opts = append(opts, WithRateLimit(rps, burst))
	}
	c := NewHTTP(url, opts...)
	return c, c.Close, nil
}
