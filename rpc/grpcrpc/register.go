package grpcrpc

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/xchain/rpc"
)

func init() {
	rpc.MustRegister(rpc.Transport{
		Name:        "grpc",
		Description: "JSON-RPC envelopes over the Validator gRPC service",
		Keys: map[string]string{
			"target":        "gRPC target host:port (required)",
			"dial-timeout":  "dial timeout, default 5s",
			"timeout":       "per-RPC timeout",
			"max-msg-bytes": "max message size in bytes (send+recv); 0 uses grpc defaults",
		},
		Open: open,
	})
}

func open(cfg map[string]string) (rpc.Caller, func() error, error) {
	target := strings.TrimSpace(cfg["target"])
	if target == "" {
		return nil, nil, fmt.Errorf("grpcrpc: missing target")
	}
	opts := DialOptions{Timeout: 5 * time.Second}
	var timeout time.Duration
	var err error
	if v := cfg["dial-timeout"]; v != "" {
		if opts.Timeout, err = time.ParseDuration(v); err != nil {
			return nil, nil, fmt.Errorf("grpcrpc: dial-timeout: %w", err)
		}
	}
	if v := cfg["timeout"]; v != "" {
		if timeout, err = time.ParseDuration(v); err != nil {
			return nil, nil, fmt.Errorf("grpcrpc: timeout: %w", err)
		}
	}
	if v := cfg["max-msg-bytes"]; v != "" {
		if opts.MaxMsgBytes, err = strconv.Atoi(v); err != nil {
			return nil, nil, fmt.Errorf("grpcrpc: max-msg-bytes: %w", err)
		}
	}

	client, err := Dial(target, opts)
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return client, client.Close, nil
}
