package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"xdao.co/xchain/config"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	_ "xdao.co/xchain/rpc/grpcrpc"
	"xdao.co/xchain/validatortest"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	local := config.Default(config.NetworkLocalnet)
	require.NoError(t, local.Validate())
	require.Equal(t, []string{config.LocalRPCURL}, local.Endpoints)
	require.Equal(t, config.LocalWSURL, local.WSURL)

	mainnet := config.Default(config.NetworkMainnet)
	require.Error(t, mainnet.Validate(), "mainnet has no built-in endpoints")
	mainnet.Endpoints = []string{"https://validator.example/rpc"}
	require.NoError(t, mainnet.Validate())
}

func TestLoadFile_YAML(t *testing.T) {
	path := write(t, "xchain.yaml", `
network: testnet
transport: grpc
endpoints:
  - 127.0.0.1:9000
  - 127.0.0.1:9001
ws_url: wss://validator.example/ws
timeout: 3s
log_level: debug
default_chain: SOLANA
default_chain_id: EtWTRABZaYq6iMfeYKouRu166VU2xqa1
`)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, "grpc", cfg.Transport)
	require.Len(t, cfg.Endpoints, 2)
	d, err := cfg.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, "3s", d.String())
	require.Equal(t, logrus.DebugLevel, cfg.Logger().GetLevel())

	acc := cfg.Account("abc")
	require.Equal(t, model.ChainSolana, acc.Chain)
	require.Equal(t, model.SolanaDevnet, acc.ChainID)
}

func TestLoadFile_JSONKeepsNetworkDefaults(t *testing.T) {
	path := write(t, "xchain.json", `{"network":"localnet","log_level":"warn"}`)
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{config.LocalRPCURL}, cfg.Endpoints)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, model.ChainPush, cfg.Account("x").Chain)
}

func TestLoadFile_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown-field.yaml": "network: localnet\nendpointz: [x]\n",
		"bad-network.yaml":   "network: moon\nendpoints: [x]\n",
		"no-network.yaml":    "endpoints: [x]\n",
		"bad-transport.yaml": "network: localnet\ntransport: smoke\n",
		"dup-endpoints.yaml": "network: devnet\nendpoints: [a, a]\n",
		"bad-ws.yaml":        "network: localnet\nws_url: http://x/ws\n",
		"bad-timeout.yaml":   "network: localnet\ntimeout: soon\n",
		"bad-level.yaml":     "network: localnet\nlog_level: loud\n",
		"bad-rate.yaml":      "network: localnet\nrate_limit: {rps: -1}\n",
		"chain-id-only.yaml": "network: devnet\nendpoints: [a]\ndefault_chain: ''\ndefault_chain_id: '1'\n",
		"unknown-field.json": `{"network":"localnet","nope":1}`,
		"malformed.json":     `{"network":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadFile(write(t, name, body))
			require.Error(t, err)
		})
	}

	_, err := config.LoadFile("")
	require.Error(t, err)
	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestOpen_SingleAndMulti(t *testing.T) {
	a := validatortest.NewServer(t)
	b := validatortest.NewServer(t)
	_, err := b.Submit(validatortest.SignedTx(1, "EMAIL"))
	require.NoError(t, err)

	cfg := config.Default(config.NetworkDevnet)
	cfg.Endpoints = []string{a.RPCURL}
	cfg.Timeout = "2s"
	cfg.RateLimit = config.RateLimit{RPS: 50, Burst: 5}
	caller, closeFn, err := cfg.Open()
	require.NoError(t, err)
	_, isMulti := caller.(rpc.Multi)
	require.False(t, isMulti)
	require.NoError(t, closeFn())

	// The first endpoint is dead, so the call fails over to b.
	dead := validatortest.NewServer(t)
	deadURL := dead.RPCURL
	dead.HTTP.Close()
	cfg.Endpoints = []string{deadURL, b.RPCURL}
	caller, closeFn, err = cfg.Open()
	require.NoError(t, err)
	defer closeFn()
	_, isMulti = caller.(rpc.Multi)
	require.True(t, isMulti)

	var page rpc.Page
	require.NoError(t, caller.Call(context.Background(), rpc.MethodGetBlocks, []any{0, "DESC", false, 10, 1}, &page))
	require.Len(t, page.Blocks, 1)
}

func TestOpen_GRPC(t *testing.T) {
	cfg := config.Default(config.NetworkLocalnet)
	cfg.Transport = "grpc"
	cfg.Endpoints = []string{config.LocalGRPC}
	caller, closeFn, err := cfg.Open()
	require.NoError(t, err)
	require.NotNil(t, caller)
	require.NoError(t, closeFn())

	cfg.Endpoints = nil
	_, _, err = cfg.Open()
	require.Error(t, err)
}
