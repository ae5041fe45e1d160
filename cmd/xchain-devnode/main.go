// Command xchain-devnode runs an in-memory validator for local development.
// It serves JSON-RPC and the subscription protocol over HTTP and the same
// JSON-RPC surface over gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"xdao.co/xchain/model"
	"xdao.co/xchain/validatortest"
	"xdao.co/xchain/wallet"
)

func main() {
	fs := flag.NewFlagSet("xchain-devnode", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:8545", "HTTP listen address (JSON-RPC on /rpc, subscriptions on /ws)")
	grpcListen := fs.String("grpc-listen", "127.0.0.1:9545", "gRPC listen address (empty disables gRPC)")
	verify := fs.Bool("verify", true, "Reject transactions whose signature does not verify")
	reject := fs.String("reject-category", "", "Vote REJECTED on every transaction of this category")
	broadcast := fs.Bool("broadcast", false, "Push blocks without subscription ids and leave routing to clients")
	logLevel := fs.String("log-level", "info", "Log level")
	_ = fs.Parse(os.Args[1:])

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.SetLevel(level)

	opts := []validatortest.Option{validatortest.WithLogger(logrus.NewEntry(log))}
	if *verify {
		opts = append(opts, validatortest.WithVerifier(wallet.VerifyTx))
	}
	if *reject != "" {
		category := *reject
		opts = append(opts, validatortest.WithVote(func(tx model.Transaction) model.Vote {
			if tx.Category == category {
				return model.VoteRejected
			}
			return model.VoteAccepted
		}))
	}
	if *broadcast {
		opts = append(opts, validatortest.WithBroadcast())
	}
	node := validatortest.NewNode(opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	hs := &http.Server{Handler: node.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 2)
	go func() {
		errs <- hs.Serve(lis)
	}()
	log.WithFields(logrus.Fields{"rpc": "http://" + lis.Addr().String() + validatortest.RPCPath, "ws": "ws://" + lis.Addr().String() + validatortest.WSPath}).Info("xchain-devnode listening")

	var gs *grpc.Server
	if *grpcListen != "" {
		glis, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		gs = grpc.NewServer()
		node.RegisterGRPC(gs)
		go func() {
			errs <- gs.Serve(glis)
		}()
		log.WithField("grpc", glis.Addr().String()).Info("xchain-devnode listening")
	}

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("server failed")
		}
	}

	node.DropConnections()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = hs.Shutdown(shutdownCtx)
	if gs != nil {
		gs.GracefulStop()
	}
	log.Info("xchain-devnode stopped")
}
