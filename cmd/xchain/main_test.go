package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"xdao.co/xchain/model"
	"xdao.co/xchain/validatortest"
	"xdao.co/xchain/wallet"
)

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, &out, &errOut)
	return result{code: code, stdout: out.String(), stderr: errOut.String()}
}

const testSeed = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestAddressCommands(t *testing.T) {
	r := runCLI(t, "address", "evm-to-push", "0x35B84d6848D16415177c64D64504663b998A6ab4")
	require.Equal(t, 0, r.code, r.stderr)
	push := strings.TrimSpace(r.stdout)
	require.True(t, strings.HasPrefix(push, "push1"), push)

	r = runCLI(t, "address", "push-to-evm", push)
	require.Equal(t, 0, r.code, r.stderr)
	require.Equal(t, "0x35B84d6848D16415177c64D64504663b998A6ab4", strings.TrimSpace(r.stdout))

	r = runCLI(t, "address", "to-agnostic", "--chain", "PUSH", "--chain-id", "devnet", "0x35B84d6848D16415177c64D64504663b998A6ab4")
	require.Equal(t, 0, r.code, r.stderr)
	require.Equal(t, "push:devnet:"+push, strings.TrimSpace(r.stdout))

	r = runCLI(t, "address", "to-universal", "eip155:1:0x35B84d6848D16415177c64D64504663b998A6ab4")
	require.Equal(t, 0, r.code, r.stderr)
	var acc model.UniversalAccount
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &acc))
	require.Equal(t, model.ChainEthereum, acc.Chain)
	require.Equal(t, "1", acc.ChainID)

	r = runCLI(t, "address", "to-universal", "--strict", "0x35B84d6848D16415177c64D64504663b998A6ab4")
	require.Equal(t, 1, r.code)

	r = runCLI(t, "address", "push-to-evm", "not-an-address")
	require.Equal(t, 1, r.code)
}

func TestUsageErrors(t *testing.T) {
	require.Equal(t, 2, runCLI(t, "address", "evm-to-push", "--bogus").code)
	require.Equal(t, 2, runCLI(t, "--log-level", "loud", "key", "list").code)
	require.Equal(t, 2, runCLI(t, "--keys-dir", t.TempDir(), "key", "import", "--name", "a", "--seed-hex", "zz").code)
}

func TestKeyCommands(t *testing.T) {
	dir := t.TempDir()
	r := runCLI(t, "--keys-dir", dir, "key", "import", "--name", "alice", "--seed-hex", testSeed)
	require.Equal(t, 0, r.code, r.stderr)
	for _, chain := range wallet.Chains() {
		require.Contains(t, r.stdout, string(chain)+"\t")
	}
	require.Contains(t, r.stdout, "push:devnet:push1")

	r = runCLI(t, "--keys-dir", dir, "key", "import", "--name", "alice", "--seed-hex", testSeed)
	require.Equal(t, 1, r.code, "existing key without --force")

	r = runCLI(t, "--keys-dir", dir, "key", "generate", "--name", "bob")
	require.Equal(t, 0, r.code, r.stderr)

	r = runCLI(t, "--keys-dir", dir, "key", "list")
	require.Equal(t, 0, r.code, r.stderr)
	require.Equal(t, "alice\nbob\n", r.stdout)

	show := runCLI(t, "--keys-dir", dir, "key", "show", "--name", "alice")
	require.Equal(t, 0, show.code, show.stderr)
	imported := runCLI(t, "--keys-dir", dir, "key", "import", "--force", "--name", "alice", "--seed-hex", testSeed)
	require.Equal(t, show.stdout, imported.stdout, "derivation is deterministic")
}

func TestTxCreate(t *testing.T) {
	r := runCLI(t, "--network", "devnet", "tx", "create", "--to", "0x35B84d6848D16415177c64D64504663b998A6ab4", "--subject", "hi", "--body", "there")
	require.Equal(t, 0, r.code, r.stderr)
	var tx model.Transaction
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &tx))
	require.Equal(t, "EMAIL", tx.Category)
	require.Empty(t, tx.Sender)
	require.False(t, tx.IsSigned())
	require.Equal(t, []string{"eip155:11155111:0x35B84d6848D16415177c64D64504663b998A6ab4"}, tx.Recipients)

	r = runCLI(t, "tx", "create", "--category", "RAW", "--data", "a", "--subject", "b")
	require.Equal(t, 2, r.code)
}

func TestTxSendAndQuery(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithVerifier(wallet.VerifyTx))
	dir := t.TempDir()
	require.Equal(t, 0, runCLI(t, "--keys-dir", dir, "key", "import", "--name", "alice", "--seed-hex", testSeed).code)

	base := []string{"--network", "devnet", "--endpoint", srv.RPCURL, "--keys-dir", dir}
	r := runCLI(t, append(base, "tx", "send", "--key", "alice", "--chain", "PUSH",
		"--to", "0x35B84d6848D16415177c64D64504663b998A6ab4", "--subject", "hello", "--body", "world", "--wait")...)
	require.Equal(t, 0, r.code, r.stderr)
	lines := strings.Split(strings.TrimSpace(r.stdout), "\n")
	require.Len(t, lines, 2)
	hash := lines[0]
	require.Equal(t, "ACCEPTED", lines[1])

	r = runCLI(t, append(base, "tx", "status", hash)...)
	require.Equal(t, 0, r.code, r.stderr)
	require.Equal(t, "ACCEPTED", strings.TrimSpace(r.stdout))

	r = runCLI(t, append(base, "tx", "by-hash", hash)...)
	require.Equal(t, 0, r.code, r.stderr)
	var rec model.TxRecord
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &rec))
	require.True(t, strings.HasPrefix(rec.Tx.Sender, "push:devnet:push1"), rec.Tx.Sender)
	require.NoError(t, wallet.VerifyTx(rec.Tx))

	r = runCLI(t, append(base, "tx", "get", "--asc", "--sender", rec.Tx.Sender)...)
	require.Equal(t, 0, r.code, r.stderr)
	var page model.BlockPage
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &page))
	require.Len(t, page.Blocks, 1)

	r = runCLI(t, append(base, "block", "get", "--asc", "--verify-hash")...)
	require.Equal(t, 0, r.code, r.stderr)
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &page))
	require.Len(t, page.Blocks, 1)

	r = runCLI(t, append(base, "block", "get", "--hash", page.Blocks[0].Hash)...)
	require.Equal(t, 0, r.code, r.stderr)

	r = runCLI(t, append(base, "tx", "by-hash", "0xunknown")...)
	require.Equal(t, 1, r.code)
	require.Contains(t, r.stderr, "not found")
}

func TestTxSendRejected(t *testing.T) {
	srv := validatortest.NewServer(t, validatortest.WithVote(func(model.Transaction) model.Vote {
		return model.VoteRejected
	}))
	dir := t.TempDir()
	require.Equal(t, 0, runCLI(t, "--keys-dir", dir, "key", "import", "--name", "alice", "--seed-hex", testSeed).code)

	r := runCLI(t, "--network", "devnet", "--endpoint", srv.RPCURL, "--keys-dir", dir,
		"tx", "send", "--key", "alice", "--category", "RAW", "--data", "x", "--to", "0x35B84d6848D16415177c64D64504663b998A6ab4", "--wait")
	require.Equal(t, 3, r.code, r.stderr)
}

func TestTxSendUnreachable(t *testing.T) {
	dead := validatortest.NewServer(t)
	url := dead.RPCURL
	dead.HTTP.Close()
	dir := t.TempDir()
	require.Equal(t, 0, runCLI(t, "--keys-dir", dir, "key", "import", "--name", "alice", "--seed-hex", testSeed).code)

	r := runCLI(t, "--network", "devnet", "--endpoint", url, "--keys-dir", dir,
		"tx", "send", "--key", "alice", "--category", "RAW", "--data", "x")
	require.Equal(t, 1, r.code)
}

func TestWatch(t *testing.T) {
	srv := validatortest.NewServer(t)

	var wg sync.WaitGroup
	var r result
	wg.Add(1)
	go func() {
		defer wg.Done()
		r = runCLI(t, "--network", "devnet", "--endpoint", srv.RPCURL, "--ws-url", srv.WSURL,
			"watch", "--category", "EMAIL", "--count", "1")
	}()

	require.Eventually(t, func() bool { return srv.ActiveSubscriptions() == 1 }, 5*time.Second, 10*time.Millisecond)
	_, err := srv.Submit(validatortest.SignedTx(1, "OTHER"))
	require.NoError(t, err)
	_, err = srv.Submit(validatortest.SignedTx(2, "EMAIL"))
	require.NoError(t, err)
	wg.Wait()

	require.Equal(t, 0, r.code, r.stderr)
	var blk model.Block
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &blk))
	require.Equal(t, "EMAIL", blk.Transactions[0].Tx.Category)
}

func TestWatchServerDrop(t *testing.T) {
	srv := validatortest.NewServer(t)

	done := make(chan result, 1)
	go func() {
		done <- runCLI(t, "--network", "devnet", "--endpoint", srv.RPCURL, "--ws-url", srv.WSURL, "watch")
	}()
	require.Eventually(t, func() bool { return srv.ActiveSubscriptions() == 1 }, 5*time.Second, 10*time.Millisecond)
	srv.DropConnections()

	select {
	case r := <-done:
		require.Equal(t, 1, r.code)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop after the server closed the connection")
	}
}

func TestWatchNeedsURL(t *testing.T) {
	r := runCLI(t, "--network", "devnet", "watch")
	require.Equal(t, 2, r.code)
}
