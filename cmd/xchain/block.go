package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"xdao.co/xchain/blockclient"
)

func newBlockCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "block",
		Short: "Query blocks",
	}

	var hash string
	var verify bool
	var qf queryFlags
	get := &cobra.Command{
		Use:   "get",
		Short: "List blocks, or print one block with --hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := qf.query()
			if err != nil {
				return err
			}
			caller, closeFn, err := a.dial()
			if err != nil {
				return err
			}
			defer closeFn()

			opts := []blockclient.Option{blockclient.WithLogger(logrus.NewEntry(a.log))}
			if verify {
				opts = append(opts, blockclient.WithHashCheck())
			}
			client := blockclient.New(caller, opts...)
			page, err := client.Get(cmd.Context(), hash, q)
			if err != nil {
				return err
			}
			if hash != "" && len(page.Blocks) == 0 {
				return fmt.Errorf("block %s not found", hash)
			}
			return a.printJSON(page)
		},
	}
	get.Flags().StringVar(&hash, "hash", "", "Block hash")
	get.Flags().BoolVar(&verify, "verify-hash", false, "Recompute each block hash and fail on mismatch")
	qf.register(get.Flags())

	cmd.AddCommand(get)
	return cmd
}
