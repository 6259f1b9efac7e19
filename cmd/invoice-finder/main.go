package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dnovak/invoice-finder/internal/credential"
	"github.com/dnovak/invoice-finder/internal/importer"
	"github.com/dnovak/invoice-finder/internal/invoices"
	"github.com/dnovak/invoice-finder/internal/mailbox"
	"github.com/dnovak/invoice-finder/internal/match"
	"github.com/dnovak/invoice-finder/internal/model"
	"github.com/dnovak/invoice-finder/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "invoice-finder",
		Short:         "Match bank transactions to invoice emails in a mailbox",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newConfigureCmd(&configPath),
		newImportCmd(&configPath),
		newMatchCmd(&configPath),
		newDownloadCmd(&configPath),
		newTestConnectionCmd(&configPath),
		newVendorsCmd(&configPath),
		newBatchesCmd(&configPath),
		newTransactionsCmd(&configPath),
	)
	return rootCmd
}

// openStore loads the config and opens the transaction store at its
// configured path.
func openStore(configPath string) (*model.AppConfig, *store.SQLiteStore, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	s, err := store.NewSQLiteStore(cfg.StorePath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, s, nil
}

// loadCredentials assembles mailbox credentials from the config file and
// the system keyring.
func loadCredentials(cfg *model.AppConfig) (mailbox.Credentials, error) {
	if cfg.Mailbox.Address == "" {
		return mailbox.Credentials{}, fmt.Errorf("mailbox is not configured; run `invoice-finder configure` first")
	}
	secret, err := credential.Get(credential.MailboxKey(cfg.Mailbox.Address))
	if err != nil {
		return mailbox.Credentials{}, fmt.Errorf("loading app password: %w", err)
	}
	return mailbox.Credentials{
		Address:     cfg.Mailbox.Address,
		AppPassword: secret,
		Region:      cfg.Mailbox.Region,
	}, nil
}

// opContext bounds a single operation by the configured timeout.
func opContext(cfg *model.AppConfig) (context.Context, context.CancelFunc) {
	timeout := time.Duration(cfg.Search.TimeoutSec) * time.Second
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

func newConfigureCmd(configPath *string) *cobra.Command {
	var address, region, appPassword string

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Store the mailbox account settings and app password",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			if address != "" {
				cfg.Mailbox.Address = address
			}
			if region != "" {
				cfg.Mailbox.Region = region
			}
			if cfg.Mailbox.Address == "" {
				return fmt.Errorf("--address is required")
			}

			if appPassword != "" {
				key := credential.MailboxKey(cfg.Mailbox.Address)
				if err := credential.Set(key, appPassword); err != nil {
					return err
				}
			}

			if err := model.SaveConfig(*configPath, cfg); err != nil {
				return err
			}
			fmt.Printf("Configuration saved to %s\n", *configPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "mailbox email address")
	cmd.Flags().StringVar(&region, "region", "", "preferred server region (pro, eu, com, in, au)")
	cmd.Flags().StringVar(&appPassword, "app-password", "", "application-specific password to store in the keyring")
	return cmd
}

func newImportCmd(configPath *string) *cobra.Command {
	var month, year string

	cmd := &cobra.Command{
		Use:   "import <statement.csv>",
		Short: "Import a bank statement CSV as pending transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			s, err := store.NewSQLiteStore(cfg.StorePath)
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			summary, err := importer.New(s, slog.Default()).ImportCSV(ctx, f, args[0], month, year)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d transactions into batch %s\n", summary.TransactionCount, summary.BatchID)
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "statement month")
	cmd.Flags().StringVar(&year, "year", "", "statement year")
	return cmd
}

func newMatchCmd(configPath *string) *cobra.Command {
	var batchID string
	var ids []string

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Search the mailbox for invoices matching pending transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}

			s, err := store.NewSQLiteStore(cfg.StorePath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			filter := store.TransactionFilter{IDs: ids}
			if batchID != "" {
				filter.BatchID = &batchID
			}
			if len(ids) == 0 && batchID == "" {
				pending := model.StatusPending
				filter.Status = &pending
			}

			transactions, err := s.GetTransactions(ctx, filter)
			if err != nil {
				return err
			}
			if len(transactions) == 0 {
				return fmt.Errorf("no transactions to match")
			}

			dial := func(ctx context.Context, creds mailbox.Credentials) (match.Mailbox, error) {
				return mailbox.Connect(ctx, creds, slog.Default())
			}
			batcher := match.NewBatcher(dial, s, slog.Default())

			report, err := batcher.MatchBatch(ctx, creds, transactions, match.Options{
				DateRangeDays:   cfg.Search.DateRangeDays,
				SearchAllFields: cfg.Search.SearchAllFields,
			})
			if err != nil {
				return err
			}

			printReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "match every transaction of this import batch")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "match only these transaction IDs")
	return cmd
}

func printReport(report *match.BatchReport) {
	for _, res := range report.Results {
		switch {
		case res.Found:
			best := res.Candidates[0]
			fmt.Printf("FOUND  %s  %q  confidence=%d  subject=%q\n",
				res.TransactionID, res.Vendor, res.Confidence, best.Subject)
		case res.Reason != "":
			fmt.Printf("SKIP   %s  %q  (%s)\n", res.TransactionID, res.Vendor, res.Reason)
		default:
			fmt.Printf("MANUAL %s  %q  candidates=%d\n", res.TransactionID, res.Vendor, res.TotalFound)
		}
	}
	fmt.Printf("\n%d processed, %d found, %d skipped\n", report.Total, report.Found, report.Skipped)
}

func newDownloadCmd(configPath *string) *cobra.Command {
	var transactionID, filename string
	var uid uint32

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Fetch a matched invoice attachment and store it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}

			s, err := store.NewSQLiteStore(cfg.StorePath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			if _, err := s.GetTransactionByID(ctx, transactionID); err != nil {
				return err
			}

			session, err := mailbox.Connect(ctx, creds, slog.Default())
			if err != nil {
				return err
			}
			defer session.Close()

			data, err := session.FetchAttachment(ctx, imap.UID(uid), filename, "")
			if err != nil {
				return err
			}

			safe, path, err := invoices.NewSaver(cfg.InvoiceDir).Save(transactionID, filename, data)
			if err != nil {
				return err
			}
			if err := s.MarkDownloaded(ctx, transactionID, safe, path); err != nil {
				return err
			}

			fmt.Printf("Saved %s (%d bytes)\n", path, len(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&transactionID, "transaction", "", "transaction ID the invoice belongs to")
	cmd.Flags().Uint32Var(&uid, "uid", 0, "message UID from the match results")
	cmd.Flags().StringVar(&filename, "filename", "", "attachment filename to fetch")
	_ = cmd.MarkFlagRequired("transaction")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("filename")
	return cmd
}

func newVendorsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Maintain the vendor list imported transactions are linked against",
	}

	var addName string
	var addKeywords []string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a vendor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			v := model.Vendor{
				ID:        uuid.New().String(),
				Name:      addName,
				Keywords:  addKeywords,
				CreatedAt: time.Now().UTC(),
			}
			if err := s.CreateVendor(ctx, v); err != nil {
				return err
			}
			fmt.Printf("Added vendor %q (%s)\n", v.Name, v.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&addName, "name", "", "vendor name as it appears on statements")
	addCmd.Flags().StringSliceVar(&addKeywords, "keywords", nil, "extra phrases that identify this vendor")
	_ = addCmd.MarkFlagRequired("name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all vendors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			vendors, err := s.GetVendors(ctx)
			if err != nil {
				return err
			}
			for _, v := range vendors {
				fmt.Printf("%s  %q  keywords=%s\n", v.ID, v.Name, strings.Join(v.Keywords, ","))
			}
			return nil
		},
	}

	var updateName string
	var updateKeywords []string
	updateCmd := &cobra.Command{
		Use:   "update <vendor-id>",
		Short: "Change a vendor's name or keywords",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			vendors, err := s.GetVendors(ctx)
			if err != nil {
				return err
			}
			var current *model.Vendor
			for i := range vendors {
				if vendors[i].ID == args[0] {
					current = &vendors[i]
					break
				}
			}
			if current == nil {
				return fmt.Errorf("vendor %s not found", args[0])
			}

			if updateName != "" {
				current.Name = updateName
			}
			if cmd.Flags().Changed("keywords") {
				current.Keywords = updateKeywords
			}
			if err := s.UpdateVendor(ctx, *current); err != nil {
				return err
			}
			fmt.Printf("Updated vendor %q (%s)\n", current.Name, current.ID)
			return nil
		},
	}
	updateCmd.Flags().StringVar(&updateName, "name", "", "new vendor name")
	updateCmd.Flags().StringSliceVar(&updateKeywords, "keywords", nil, "replacement keyword list")

	rmCmd := &cobra.Command{
		Use:   "rm <vendor-id>",
		Short: "Remove a vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			if err := s.DeleteVendor(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed vendor %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd, updateCmd, rmCmd)
	return cmd
}

func newBatchesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Inspect and remove import batches",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List import batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			batches, err := s.GetBatches(ctx)
			if err != nil {
				return err
			}
			for _, b := range batches {
				fmt.Printf("%s  %s  %s/%s  %d transactions, %d downloaded\n",
					b.ID, b.Filename, b.Month, b.Year, b.TransactionCount, b.DownloadedCount)
			}
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <batch-id>",
		Short: "Remove a batch and all its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			if err := s.DeleteBatch(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed batch %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, rmCmd)
	return cmd
}

func newTransactionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Inspect and remove imported transactions",
	}

	var batchID, status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, optionally filtered by batch or status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			var filter store.TransactionFilter
			if batchID != "" {
				filter.BatchID = &batchID
			}
			if status != "" {
				filter.Status = &status
			}

			transactions, err := s.GetTransactions(ctx, filter)
			if err != nil {
				return err
			}
			for _, tx := range transactions {
				fmt.Printf("%s  %s  %q  %s  %s  confidence=%d\n",
					tx.ID, tx.DateText, tx.Vendor, tx.Amount, tx.Status, tx.Confidence)
			}
			return nil
		},
	}
	listCmd.Flags().StringVar(&batchID, "batch", "", "only transactions of this import batch")
	listCmd.Flags().StringVar(&status, "status", "", "only transactions with this status")

	rmCmd := &cobra.Command{
		Use:   "rm <transaction-id>",
		Short: "Remove a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, s, err := openStore(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, cancel := opContext(cfg)
			defer cancel()

			if err := s.DeleteTransaction(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed transaction %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, rmCmd)
	return cmd
}

func newTestConnectionCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Verify the mailbox credentials against the region endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(*configPath)
			if err != nil {
				return err
			}

			creds, err := loadCredentials(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := opContext(cfg)
			defer cancel()

			session, err := mailbox.Connect(ctx, creds, slog.Default())
			if err != nil {
				if mailbox.IsAuthError(err) {
					return fmt.Errorf("%w\ncheck that IMAP is enabled for the account and the app password is correct", err)
				}
				return err
			}
			defer session.Close()

			fmt.Printf("Connected to %s as %s\n", session.Host(), strings.TrimSpace(creds.Address))
			return nil
		},
	}
}
