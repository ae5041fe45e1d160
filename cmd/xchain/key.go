package main

import (
	"crypto/rand"
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/xchain/address"
	"xdao.co/xchain/model"
	"xdao.co/xchain/wallet"
)

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage local signing keys",
		Long: `Manage local signing keys.

A stored key is a 32-byte root seed. Each chain family signs with its own key
derived from that seed, so one name yields an address on every chain.`,
	}

	var name string
	var force bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate and store a new key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			if _, err := ks.Generate(name, rand.Reader, force); err != nil {
				return err
			}
			return a.showKey(cmd, ks, name)
		},
	}
	generate.Flags().StringVar(&name, "name", "", "Key name")
	generate.Flags().BoolVar(&force, "force", false, "Overwrite an existing key")
	_ = generate.MarkFlagRequired("name")

	var seedHex string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Store an existing 32-byte seed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := wallet.ParseSeedHex(seedHex)
			if err != nil {
				return usageError{fmt.Errorf("--seed-hex: %w", err)}
			}
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			if _, err := ks.Save(name, seed, force); err != nil {
				return err
			}
			return a.showKey(cmd, ks, name)
		},
	}
	importCmd.Flags().StringVar(&name, "name", "", "Key name")
	importCmd.Flags().StringVar(&seedHex, "seed-hex", "", "Seed as 64 hex characters")
	importCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing key")
	_ = importCmd.MarkFlagRequired("name")
	_ = importCmd.MarkFlagRequired("seed-hex")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			names, err := ks.List()
			if err != nil {
				return err
			}
			for _, n := range names {
				a.println(n)
			}
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the chain-agnostic address of a key on every chain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			return a.showKey(cmd, ks, name)
		},
	}
	show.Flags().StringVar(&name, "name", "", "Key name")
	_ = show.MarkFlagRequired("name")

	cmd.AddCommand(generate, importCmd, list, show)
	return cmd
}

func (a *app) showKey(cmd *cobra.Command, ks *wallet.KeyStore, name string) error {
	for _, chain := range wallet.Chains() {
		acc, err := connectStored(cmd, ks, name, chain, "")
		if err != nil {
			return err
		}
		s, err := address.ToChainAgnostic(acc)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.out, "%s\t%s\n", chain, s)
	}
	return nil
}

func connectStored(cmd *cobra.Command, ks *wallet.KeyStore, name string, chain model.Chain, chainID string) (model.UniversalAccount, error) {
	p, err := wallet.OpenStored(ks, name, chain, chainID)
	if err != nil {
		return model.UniversalAccount{}, err
	}
	defer func() { _ = p.Disconnect(cmd.Context()) }()
	return p.Connect(cmd.Context())
}
