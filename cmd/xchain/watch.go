package main

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"xdao.co/xchain/model"
	"xdao.co/xchain/subscription"
)

// watchPoll is how often watch checks that the connection is still up.
var watchPoll = 500 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var categories, from, to []string
	var count int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream new blocks as JSON lines",
		Long: `Stream new blocks as JSON lines.

Filters of different kinds are alternatives: a block is printed when it
matches any of them. Without filters every block is printed. The stream ends
after --count blocks, on interrupt, or when the server closes the connection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.WSURL == "" {
				return usageError{errors.New("no subscription URL configured; set ws_url or --ws-url")}
			}
			var filters []model.Filter
			if len(categories) > 0 {
				filters = append(filters, model.Filter{Type: model.FilterCategory, Value: categories})
			}
			for _, list := range []struct {
				typ   model.FilterType
				addrs []string
			}{{model.FilterFrom, from}, {model.FilterRecipients, to}} {
				if len(list.addrs) == 0 {
					continue
				}
				values := make([]string, 0, len(list.addrs))
				for _, s := range list.addrs {
					v, err := a.agnostic(s)
					if err != nil {
						return err
					}
					values = append(values, v)
				}
				filters = append(filters, model.Filter{Type: list.typ, Value: values})
			}

			ctx := cmd.Context()
			client := subscription.New(a.cfg.WSURL, subscription.WithLogger(logrus.NewEntry(a.log)))
			if err := client.Connect(ctx); err != nil {
				return err
			}
			defer func() { _ = client.Disconnect() }()

			var mu sync.Mutex
			seen := 0
			done := make(chan struct{})
			enc := json.NewEncoder(a.out)
			_, err := client.Subscribe(ctx, func(blk model.Block) {
				mu.Lock()
				defer mu.Unlock()
				if count > 0 && seen >= count {
					return
				}
				if err := enc.Encode(blk); err != nil {
					a.log.WithError(err).Warn("write block")
				}
				seen++
				if count > 0 && seen == count {
					close(done)
				}
			}, filters...)
			if err != nil {
				return err
			}

			ticker := time.NewTicker(watchPoll)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if !client.IsConnected() {
						return model.NetworkError("connection-closed", "subscription connection closed by server", nil)
					}
				}
			}
		},
	}
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Only blocks with a transaction of this category (repeatable)")
	cmd.Flags().StringSliceVar(&from, "from", nil, "Only blocks with a transaction from this address (repeatable)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Only blocks with a transaction to this address (repeatable)")
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many blocks (0 streams until interrupted)")
	return cmd
}
