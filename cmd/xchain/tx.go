package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"xdao.co/xchain/address"
	"xdao.co/xchain/model"
	"xdao.co/xchain/rpc"
	"xdao.co/xchain/schema"
	"xdao.co/xchain/txclient"
	"xdao.co/xchain/wallet"
)

// queryFlags binds the history query flags shared by tx and block listings.
type queryFlags struct {
	since    string
	asc      bool
	page     int
	pageSize int
}

func (f *queryFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.since, "since", "", "Start time (RFC 3339); default now, or the beginning with --asc")
	fs.BoolVar(&f.asc, "asc", false, "Oldest first")
	fs.IntVar(&f.page, "page", rpc.DefaultPage, "Page number, starting at 1")
	fs.IntVar(&f.pageSize, "page-size", rpc.DefaultPageSize, "Items per page")
}

func (f *queryFlags) query() (rpc.Query, error) {
	q := rpc.Query{Direction: model.Desc, Page: f.page, PageSize: f.pageSize}
	if f.asc {
		q.Direction = model.Asc
	}
	if f.since != "" {
		t, err := time.Parse(time.RFC3339, f.since)
		if err != nil {
			return rpc.Query{}, usageError{fmt.Errorf("--since: %w", err)}
		}
		q.StartTime = t
	}
	return q, nil
}

// payloadFlags selects the transaction data: raw bytes, or an EMAIL
// message encoded with its schema.
type payloadFlags struct {
	data    string
	dataHex string
	subject string
	body    string
	html    bool
}

func (f *payloadFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.data, "data", "", "Raw payload as text")
	fs.StringVar(&f.dataHex, "data-hex", "", "Raw payload as hex")
	fs.StringVar(&f.subject, "subject", "", "EMAIL subject")
	fs.StringVar(&f.body, "body", "", "EMAIL body")
	fs.BoolVar(&f.html, "html", false, "EMAIL body is HTML")
}

func (a *app) unsignedTx(client *txclient.Client, category string, to []string, p payloadFlags) (model.Transaction, error) {
	recipients := make([]string, 0, len(to))
	for _, r := range to {
		s, err := a.agnostic(r)
		if err != nil {
			return model.Transaction{}, fmt.Errorf("recipient %q: %w", r, err)
		}
		recipients = append(recipients, s)
	}

	raw := p.data != "" || p.dataHex != ""
	email := p.subject != "" || p.body != ""
	switch {
	case raw && email:
		return model.Transaction{}, usageError{fmt.Errorf("--data/--data-hex and --subject/--body are exclusive")}
	case email:
		if category == "" {
			category = schema.CategoryEmail
		}
		msg := schema.Email{Subject: p.subject, Body: schema.EmailBody{Content: p.body, Format: schema.FormatText}}
		if p.html {
			msg.Body.Format = schema.FormatHTML
		}
		return client.CreateUnsignedPayload(category, recipients, &msg)
	case p.dataHex != "":
		if p.data != "" {
			return model.Transaction{}, usageError{fmt.Errorf("--data and --data-hex are exclusive")}
		}
		b, err := hex.DecodeString(strings.TrimPrefix(p.dataHex, "0x"))
		if err != nil {
			return model.Transaction{}, usageError{fmt.Errorf("--data-hex: %w", err)}
		}
		return client.CreateUnsigned(category, recipients, b)
	default:
		return client.CreateUnsigned(category, recipients, []byte(p.data))
	}
}

// agnostic renders s in chain-agnostic form. Strings that already carry a
// namespace are kept; bare addresses are placed on the default chain.
func (a *app) agnostic(s string) (string, error) {
	if strings.Contains(s, ":") {
		return s, nil
	}
	return address.ToChainAgnostic(a.cfg.Account(s))
}

func (a *app) defaultChain(chain string) model.Chain {
	switch {
	case chain != "":
		return model.Chain(chain)
	case a.cfg.DefaultChain != "":
		return model.Chain(a.cfg.DefaultChain)
	default:
		return model.ChainEthereum
	}
}

func (a *app) txClient(caller rpc.Caller) *txclient.Client {
	return txclient.New(caller, txclient.WithLogger(logrus.NewEntry(a.log)))
}

func newTxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Create, send and query transactions",
	}
	cmd.AddCommand(newTxCreateCmd(a), newTxSendCmd(a), newTxGetCmd(a), newTxByHashCmd(a), newTxStatusCmd(a))
	return cmd
}

func newTxCreateCmd(a *app) *cobra.Command {
	var category string
	var to []string
	var payload payloadFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Print an unsigned transaction as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := a.unsignedTx(a.txClient(nil), category, to, payload)
			if err != nil {
				return err
			}
			return a.printJSON(tx)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Transaction category (default EMAIL with --subject)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipient address (repeatable)")
	payload.register(cmd.Flags())
	return cmd
}

func newTxSendCmd(a *app) *cobra.Command {
	var (
		keyName, chain, chainID, category string
		to                                []string
		payload                           payloadFlags
		wait                              bool
		waitTimeout                       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign a transaction with a stored key and submit it",
		Long: `Sign a transaction with a stored key and submit it.

Prints the transaction hash. With --wait it then polls until the network
reports ACCEPTED or REJECTED; a rejection exits with status 3.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ks, err := a.keyStore()
			if err != nil {
				return err
			}
			p, err := wallet.OpenStored(ks, keyName, a.defaultChain(chain), chainID)
			if err != nil {
				return err
			}
			defer func() { _ = p.Disconnect(ctx) }()
			signer, err := wallet.Signer(ctx, p)
			if err != nil {
				return err
			}

			caller, closeFn, err := a.dial()
			if err != nil {
				return err
			}
			defer closeFn()
			client := a.txClient(caller)

			tx, err := a.unsignedTx(client, category, to, payload)
			if err != nil {
				return err
			}
			hash, err := client.Send(ctx, tx, signer)
			if err != nil {
				return err
			}
			a.println(hash)
			if !wait {
				return nil
			}

			waitCtx, cancel := context.WithTimeout(ctx, waitTimeout)
			defer cancel()
			rec, err := client.WaitAccepted(waitCtx, hash)
			if err != nil {
				return err
			}
			a.println(rec.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyName, "key", "", "Stored key to sign with")
	cmd.Flags().StringVar(&chain, "chain", "", "Chain to sign on (default: the configured default chain)")
	cmd.Flags().StringVar(&chainID, "chain-id", "", "Chain id (default: the chain's default network)")
	cmd.Flags().StringVar(&category, "category", "", "Transaction category (default EMAIL with --subject)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "Recipient address (repeatable)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the transaction is accepted or rejected")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", time.Minute, "Maximum time to wait with --wait")
	payload.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func newTxGetCmd(a *app) *cobra.Command {
	var sender, recipient, category string
	var qf queryFlags
	cmd := &cobra.Command{
		Use:   "get",
		Short: "List transactions, optionally by sender or recipient",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sender != "" && recipient != "" {
				return usageError{fmt.Errorf("--sender and --recipient are exclusive")}
			}
			q, err := qf.query()
			if err != nil {
				return err
			}
			q.Category = category

			caller, closeFn, err := a.dial()
			if err != nil {
				return err
			}
			defer closeFn()
			client := a.txClient(caller)

			var page model.BlockPage
			switch {
			case sender != "":
				s, err := a.agnostic(sender)
				if err != nil {
					return err
				}
				page, err = client.GetBySender(cmd.Context(), s, q)
				if err != nil {
					return err
				}
			case recipient != "":
				r, err := a.agnostic(recipient)
				if err != nil {
					return err
				}
				page, err = client.GetByRecipient(cmd.Context(), r, q)
				if err != nil {
					return err
				}
			default:
				page, err = client.Get(cmd.Context(), q)
				if err != nil {
					return err
				}
			}
			return a.printJSON(page)
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "Only transactions from this address")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Only transactions to this address")
	cmd.Flags().StringVar(&category, "category", "", "Only transactions of this category")
	qf.register(cmd.Flags())
	return cmd
}

func newTxByHashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "by-hash <hash>",
		Short: "Print one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, closeFn, err := a.dial()
			if err != nil {
				return err
			}
			defer closeFn()
			rec, ok, err := a.txClient(caller).GetByHash(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("transaction %s not found", args[0])
			}
			return a.printJSON(rec)
		},
	}
}

func newTxStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <hash>",
		Short: "Print the status of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, closeFn, err := a.dial()
			if err != nil {
				return err
			}
			defer closeFn()
			status, err := a.txClient(caller).Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if status == model.TxStatusUnknown {
				a.println("UNKNOWN")
				return nil
			}
			a.println(status)
			return nil
		},
	}
}
