package main

import (
	"github.com/spf13/cobra"

	"xdao.co/xchain/address"
	"xdao.co/xchain/model"
	"xdao.co/xchain/universal"
)

func newAddressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Convert between native and chain-agnostic addresses",
	}

	var chain, chainID string
	toAgnostic := &cobra.Command{
		Use:   "to-agnostic <address>",
		Short: "Render an address as namespace:chainId:address",
		Long: `Render an address as namespace:chainId:address.

Without --chain the configured default chain is used. PUSH hex addresses are
converted to bech32.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			acc := a.cfg.Account(args[0])
			if chain != "" {
				acc = universal.CreateUniversalAccount(universal.AccountOptions{
					Address: args[0],
					Chain:   model.Chain(chain),
					ChainID: chainID,
				})
			}
			s, err := address.ToChainAgnostic(acc)
			if err != nil {
				return err
			}
			a.println(s)
			return nil
		},
	}
	toAgnostic.Flags().StringVar(&chain, "chain", "", "Chain of the address (ETHEREUM, PUSH, SOLANA)")
	toAgnostic.Flags().StringVar(&chainID, "chain-id", "", "Chain id (default "+universal.DefaultChainID+")")

	var strict bool
	toUniversal := &cobra.Command{
		Use:   "to-universal <chain-agnostic-address>",
		Short: "Parse a chain-agnostic address into chain, chain id and address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strict {
				acc, err := address.ParseChainAgnostic(args[0])
				if err != nil {
					return err
				}
				return a.printJSON(acc)
			}
			return a.printJSON(address.ToUniversal(args[0]))
		},
	}
	toUniversal.Flags().BoolVar(&strict, "strict", false, "Require namespace:chainId:address")

	evmToPush := &cobra.Command{
		Use:   "evm-to-push <0x-address>",
		Short: "Convert an EVM hex address to a push1 bech32 address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := address.EVMToPush(args[0])
			if err != nil {
				return err
			}
			a.println(s)
			return nil
		},
	}

	pushToEVM := &cobra.Command{
		Use:   "push-to-evm <push1-address>",
		Short: "Convert a push1 bech32 address to a checksummed EVM address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := address.PushToEVM(args[0])
			if err != nil {
				return err
			}
			a.println(s)
			return nil
		},
	}

	cmd.AddCommand(toAgnostic, toUniversal, evmToPush, pushToEVM)
	return cmd
}
