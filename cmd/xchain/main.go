// Command xchain is a command-line client for the validator network: address
// conversion, local keys, transaction submission and history, blocks and
// live block subscriptions.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"xdao.co/xchain/config"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	_ "xdao.co/xchain/rpc/grpcrpc"
	"xdao.co/xchain/wallet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code: 0 on
// success, 2 for usage errors, 3 when the validator rejected a transaction
// and 1 otherwise.
func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		var usage usageError
		switch {
		case errors.As(err, &usage):
			return 2
		case errors.Is(err, model.ErrTxRejected):
			return 3
		default:
			return 1
		}
	}
	return 0
}

type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

// app carries the global flags and the state derived from them.
type app struct {
	configPath string
	network    string
	transport  string
	endpoints  []string
	wsURL      string
	logLevel   string
	keysDir    string

	out    io.Writer
	errOut io.Writer
	cfg    config.Config
	log    *logrus.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:           "xchain",
		Short:         "Cross-chain account and transaction client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (YAML, or JSON by .json extension)")
	pf.StringVar(&a.network, "network", config.NetworkLocalnet, "Network to use when no --config is given")
	pf.StringVar(&a.transport, "transport", "", "Override the configured transport ("+strings.Join(rpc.Names(), ", ")+")")
	pf.StringSliceVar(&a.endpoints, "endpoint", nil, "Override the configured endpoints (repeatable)")
	pf.StringVar(&a.wsURL, "ws-url", "", "Override the configured subscription URL")
	pf.StringVar(&a.logLevel, "log-level", "", "Override the configured log level")
	pf.StringVar(&a.keysDir, "keys-dir", "", "Key store directory (default ~/.xchain/keys)")

	root.AddCommand(
		newAddressCmd(a),
		newKeyCmd(a),
		newTxCmd(a),
		newBlockCmd(a),
		newWatchCmd(a),
	)
	return root
}

// load resolves the effective config: the file (or the network defaults)
// with command-line overrides applied on top.
func (a *app) load() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
		if err != nil {
			return err
		}
	} else {
		a.cfg = config.Default(a.network)
	}
	if a.transport != "" {
		a.cfg.Transport = a.transport
	}
	if len(a.endpoints) > 0 {
		a.cfg.Endpoints = a.endpoints
	}
	if a.wsURL != "" {
		a.cfg.WSURL = a.wsURL
	}
	if a.logLevel != "" {
		if _, err := logrus.ParseLevel(a.logLevel); err != nil {
			return usageError{err}
		}
		a.cfg.LogLevel = a.logLevel
	}
	a.log = a.cfg.Logger()
	a.log.SetOutput(a.errOut)
	return nil
}

// dial opens the configured validator transport.
func (a *app) dial() (rpc.Caller, func() error, error) {
	caller, closeFn, err := a.cfg.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open %s transport: %w", a.cfg.Network, err)
	}
	return caller, closeFn, nil
}

func (a *app) keyStore() (*wallet.KeyStore, error) {
	return wallet.NewKeyStore(a.keysDir)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) println(v ...any) {
	_, _ = fmt.Fprintln(a.out, v...)
}
