package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/erp_core/config"
	"github.com/mmdatafocus/erp_core/models"
	"github.com/mmdatafocus/erp_core/utils"
	"github.com/mmdatafocus/erp_core/workflow"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var errMismatch = errors.New("cached state disagrees with the log")

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Maintenance tasks for the stock and accounting ledgers",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newBootstrapCommand(),
		newRebuildStockCommand(),
		newVerifyCommand(),
		newOutboxCommand(),
		newTokenCommand(),
	)
	return rootCmd
}

// connect opens the database from DB_* env vars.
func connect() (*gorm.DB, error) {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized")
	}
	return db, nil
}

// businessTx runs fn in one transaction with the business id in context, so the tenant guard applies.
func businessTx(businessId string, fn func(tx *gorm.DB) error) error {
	if strings.TrimSpace(businessId) == "" {
		return errors.New("--business is required")
	}
	db, err := connect()
	if err != nil {
		return err
	}
	ctx := utils.SystemContext(context.Background(), businessId)
	return db.WithContext(ctx).Transaction(fn)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}
			if err := models.MigrateTable(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newBootstrapCommand() *cobra.Command {
	var businessId string
	cmd := &cobra.Command{
		Use:   "bootstrap-accounts",
		Short: "Create the system chart of accounts for a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			return businessTx(businessId, func(tx *gorm.DB) error {
				chart, err := workflow.BootstrapChartOfAccounts(tx, businessId)
				if err != nil {
					return err
				}
				return printJSON(chart)
			})
		},
	}
	cmd.Flags().StringVar(&businessId, "business", "", "business id")
	return cmd
}

func newRebuildStockCommand() *cobra.Command {
	var (
		businessId  string
		productId   int
		warehouseId int
		dryRun      bool
	)
	cmd := &cobra.Command{
		Use:   "rebuild-stock",
		Short: "Replay stock movements and rewrite cached quantities that disagree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (productId > 0) != (warehouseId > 0) {
				return errors.New("--product and --warehouse go together")
			}
			return businessTx(businessId, func(tx *gorm.DB) error {
				mismatches, err := workflow.RebuildStock(tx, businessId, productId, warehouseId, dryRun)
				if err != nil {
					return err
				}
				config.GetLogger().WithFields(logrus.Fields{
					"field":       "rebuild-stock",
					"business_id": businessId,
					"mismatches":  len(mismatches),
					"dry_run":     dryRun,
				}).Info("stock rebuild finished")
				return printJSON(mismatches)
			})
		},
	}
	cmd.Flags().StringVar(&businessId, "business", "", "business id")
	cmd.Flags().IntVar(&productId, "product", 0, "only this product (needs --warehouse)")
	cmd.Flags().IntVar(&warehouseId, "warehouse", 0, "only this warehouse (needs --product)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without writing")
	return cmd
}

type verifyReport struct {
	Stock    []models.StockMismatch          `json:"stock"`
	Accounts []models.AccountBalanceMismatch `json:"accounts"`
}

func newVerifyCommand() *cobra.Command {
	var businessId string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check cached stock and account balances against their logs; exits non-zero on mismatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			var report verifyReport
			err := businessTx(businessId, func(tx *gorm.DB) (err error) {
				if report.Stock, err = workflow.VerifyStock(tx, businessId); err != nil {
					return err
				}
				report.Accounts, err = workflow.VerifyAccountBalances(tx, businessId)
				return err
			})
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if len(report.Stock) > 0 || len(report.Accounts) > 0 {
				return errMismatch
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&businessId, "business", "", "business id")
	return cmd
}

func newOutboxCommand() *cobra.Command {
	outboxCmd := &cobra.Command{
		Use:   "outbox",
		Short: "Ledger event outbox operations",
	}

	var businessId string
	requeueCmd := &cobra.Command{
		Use:   "requeue",
		Short: "Move DEAD events back to PENDING",
		RunE: func(cmd *cobra.Command, args []string) error {
			return businessTx(businessId, func(tx *gorm.DB) error {
				n, err := workflow.RequeueDeadEvents(tx, businessId)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d events\n", n)
				return nil
			})
		},
	}
	requeueCmd.Flags().StringVar(&businessId, "business", "", "business id")

	dispatchCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Publish one batch of pending events with EVENT_PUBLISHER",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}
			d := workflow.NewOutboxDispatcher(db, config.GetLogger(), workflow.NewEventPublisherFromEnv())
			n := d.DispatchOnce(cmd.Context())
			config.ClosePubSub()
			config.CloseKafka()
			fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", n)
			return nil
		},
	}

	outboxCmd.AddCommand(requeueCmd, dispatchCmd)
	return outboxCmd
}

func newTokenCommand() *cobra.Command {
	var (
		businessId string
		userId     int
		name       string
		role       string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for calling the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(businessId) == "" {
				return errors.New("--business is required")
			}
			token, err := utils.JwtGenerate(userId, name, businessId, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&businessId, "business", "", "business id")
	cmd.Flags().IntVar(&userId, "user", 0, "user id")
	cmd.Flags().StringVar(&name, "name", "ops", "user name")
	cmd.Flags().StringVar(&role, "role", "admin", "role")
	return cmd
}
