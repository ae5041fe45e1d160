// Package config loads the network configuration shared by the CLI and the
// dev node, and opens the configured validator transport.
//
// Transports are opened through the rpc registry; callers link the ones they
// need (the HTTP transport is always present, gRPC needs a blank import of
// xdao.co/xchain/rpc/grpcrpc).
//
// Example (YAML):
//
//	network: localnet
//	transport: http
//	endpoints:
//	  - http://127.0.0.1:8545/rpc
//	  - http://127.0.0.1:8546/rpc
//	ws_url: ws://127.0.0.1:8545/ws
//	timeout: 10s
//	rate_limit: {rps: 20, burst: 5}
//	log_level: info
//	default_chain: ETHEREUM
//	default_chain_id: "11155111"
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	"xdao.co/xchain/universal"
)

// Networks accepted in Config.Network.
const (
	NetworkMainnet  = "mainnet"
	NetworkTestnet  = "testnet"
	NetworkDevnet   = "devnet"
	NetworkLocalnet = "localnet"
)

// Local dev node endpoints, as served by xchain-devnode.
const (
	LocalRPCURL = "http://127.0.0.1:8545/rpc"
	LocalWSURL  = "ws://127.0.0.1:8545/ws"
	LocalGRPC   = "127.0.0.1:9545"
)

type Config struct {
	Network   string   `yaml:"network" json:"network"`
	Transport string   `yaml:"transport,omitempty" json:"transport,omitempty"`
	Endpoints []string `yaml:"endpoints" json:"endpoints"`
	WSURL     string   `yaml:"ws_url,omitempty" json:"ws_url,omitempty"`
	// Timeout is a Go duration string; empty keeps the transport default.
	Timeout        string    `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	RateLimit      RateLimit `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	LogLevel       string    `yaml:"log_level,omitempty" json:"log_level,omitempty"`
	DefaultChain   string    `yaml:"default_chain,omitempty" json:"default_chain,omitempty"`
	DefaultChainID string    `yaml:"default_chain_id,omitempty" json:"default_chain_id,omitempty"`
}

// RateLimit caps outgoing requests per endpoint. RPS 0 disables it. Only
// the http transport applies it.
type RateLimit struct {
	RPS   float64 `yaml:"rps" json:"rps"`
	Burst int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// Default returns the configuration for network. Only localnet has built-in
// endpoints; the others need Endpoints set before they validate.
func Default(network string) Config {
	cfg := Config{
		Network:   network,
		Transport: "http",
		LogLevel:  "info",
	}
	if network == NetworkLocalnet {
		cfg.Endpoints = []string{LocalRPCURL}
		cfg.WSURL = LocalWSURL
		cfg.DefaultChain = string(model.ChainPush)
		cfg.DefaultChainID = model.PushLocalnet
	}
	return cfg
}

// LoadFile reads a YAML or JSON (by .json extension) config and validates
// it. Fields missing from the file keep the defaults of its network.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var head struct {
		Network string `yaml:"network" json:"network"`
	}
	isJSON := strings.EqualFold(filepath.Ext(path), ".json")
	unmarshal := yaml.Unmarshal
	if isJSON {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(b, &head); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg := Default(head.Network)
	if isJSON {
		dec := json.NewDecoder(strings.NewReader(string(b)))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	} else {
		dec := yaml.NewDecoder(strings.NewReader(string(b)))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Network {
	case NetworkMainnet, NetworkTestnet, NetworkDevnet, NetworkLocalnet:
	case "":
		return errors.New("config: network is required")
	default:
		return fmt.Errorf("config: invalid network %q", c.Network)
	}
	if !slices.Contains(rpc.Names(), c.transport()) {
		return fmt.Errorf("config: unknown transport %q (linked: %s)", c.transport(), strings.Join(rpc.Names(), ", "))
	}
	if len(c.Endpoints) == 0 {
		return errors.New("config: at least one endpoint is required")
	}
	seen := make(map[string]struct{}, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if strings.TrimSpace(e) == "" {
			return errors.New("config: empty endpoint")
		}
		if _, dup := seen[e]; dup {
			return fmt.Errorf("config: duplicate endpoint %q", e)
		}
		seen[e] = struct{}{}
	}
	if c.WSURL != "" && !strings.HasPrefix(c.WSURL, "ws://") && !strings.HasPrefix(c.WSURL, "wss://") {
		return fmt.Errorf("config: ws_url must be a ws:// or wss:// URL, got %q", c.WSURL)
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: rate_limit must not be negative")
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.DefaultChainID != "" && c.DefaultChain == "" {
		return errors.New("config: default_chain_id requires default_chain")
	}
	return nil
}

func (c Config) transport() string {
	if c.Transport == "" {
		return "http"
	}
	return c.Transport
}

// TimeoutDuration parses Timeout; empty is zero.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: invalid timeout %q", c.Timeout)
	}
	return d, nil
}

// Open opens every endpoint with the configured transport. A single endpoint
// is returned as is; several are wrapped in rpc.Multi in the listed order.
func (c Config) Open() (rpc.Caller, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	callers := make([]rpc.Caller, 0, len(c.Endpoints))
	closers := make([]func() error, 0, len(c.Endpoints))
	closeAll := func() error {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i]())
		}
		return errs
	}
	for _, e := range c.Endpoints {
		caller, closeFn, err := rpc.Open(c.transport(), c.transportConfig(e))
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		callers = append(callers, caller)
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(callers) == 1 {
		return callers[0], closeAll, nil
	}
	return rpc.Multi{Callers: callers}, closeAll, nil
}

// transportConfig maps the config onto the key set of the transport.
func (c Config) transportConfig(endpoint string) map[string]string {
	m := map[string]string{}
	switch c.transport() {
	case "grpc":
		m["target"] = endpoint
	default:
		m["url"] = endpoint
	}
	if c.Timeout != "" {
		m["timeout"] = c.Timeout
	}
	if c.RateLimit.RPS > 0 && c.transport() == "http" {
		m["rate-limit"] = strconv.FormatFloat(c.RateLimit.RPS, 'f', -1, 64)
		if c.RateLimit.Burst > 0 {
			m["burst"] = strconv.Itoa(c.RateLimit.Burst)
		}
	}
	return m
}

// Logger returns a logger at the configured level with a text formatter.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level := logrus.InfoLevel
	if c.LogLevel != "" {
		if l, err := logrus.ParseLevel(c.LogLevel); err == nil {
			level = l
		}
	}
	log.SetLevel(level)
	return log
}

// Account builds an account for addr on the configured default chain.
func (c Config) Account(addr string) model.UniversalAccount {
	return universal.CreateUniversalAccount(universal.AccountOptions{
		Address: addr,
		Chain:   model.Chain(c.DefaultChain),
		ChainID: c.DefaultChainID,
	})
}
