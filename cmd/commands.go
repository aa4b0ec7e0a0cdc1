package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/payment"
	"github.com/Global-Optima/zeep-print-agent/internal/services"
	"github.com/Global-Optima/zeep-print-agent/internal/utils"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive first-run setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(opts.configFile); err == nil {
				return fmt.Errorf("%s already exists; edit it or remove it first", opts.configFile)
			}
			_, err := utils.SetupConfig(cmd.InOrStdin(), cmd.OutOrStdout(), opts.configFile)
			return err
		},
	}
}

func newDoctorCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that this machine can run the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := utils.LoadConfig(opts.configFile)
			if err != nil {
				return err
			}
			return utils.ValidateSystemRequirements(cmd.OutOrStdout(), cfg)
		},
	}
}

func newDiscoverCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Scan the local network for raw printers and pick one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printers, err := services.DiscoverPrinters(cmd.Context(), cmd.InOrStdin(), out)
			if err != nil {
				return err
			}
			if len(printers) == 0 {
				fmt.Fprintln(out, "No printer selected.")
				return nil
			}
			cfg.Printer.Name = printers[0].Name
			cfg.Printer.Mode = printers[0].Mode
			cfg.Printer.IP = printers[0].IP
			cfg.Printer.Port = printers[0].Port
			cfg.Printer.Format = printers[0].Format
			if err := utils.SaveConfig(opts.configFile, cfg); err != nil {
				return err
			}
			fmt.Fprintf(out, "Printer %q at %s saved.\n", cfg.Printer.Name, cfg.Printer.IP)
			return nil
		},
	}
}

func newPrintTestCommand(opts *rootOptions) *cobra.Command {
	var orderFile string

	cmd := &cobra.Command{
		Use:   "print-test",
		Short: "Print the labels of a sample order (or one read from --order)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			order := sampleOrder()
			if orderFile != "" {
				raw, err := os.ReadFile(orderFile)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &order); err != nil {
					return fmt.Errorf("invalid order file: %w", err)
				}
			}

			st, err := newStation(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.shutdown(time.Minute)

			return st.dispatcher.Dispatch(cmd.Context(), order)
		},
	}
	cmd.Flags().StringVar(&orderFile, "order", "", "JSON file with an order to print")
	return cmd
}

func sampleOrder() model.Order {
	return model.Order{
		ID:            1,
		CustomerName:  "Test",
		DisplayNumber: 1,
		Status:        model.OrderStatusPending,
		CreatedAt:     time.Now(),
		SubOrders: []model.SubOrder{{
			ID:      1,
			OrderID: 1,
			Status:  model.SubOrderStatusPending,
			ProductSize: model.ProductSize{
				ProductName:     "Latte",
				SizeName:        "M",
				Size:            350,
				Unit:            model.Unit{Name: "ml"},
				MachineID:       "TEST-1",
				MachineCategory: "COFFEE",
			},
		}},
	}
}

func newPOSCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pos",
		Short: "Kaspi POS terminal operations",
	}

	withClient := func(run func(ctx context.Context, c *payment.Client, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := kvstore.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			pcfg := payment.ConfigFrom(cfg.POS)
			pcfg.Logger = logger
			client, err := payment.New(ctx, pcfg, store)
			if err != nil {
				return err
			}
			return run(ctx, client, cmd)
		}
	}

	var cashier string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register this station with the terminal",
		RunE: withClient(func(ctx context.Context, c *payment.Client, cmd *cobra.Command) error {
			cred, err := c.Register(ctx, cashier)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, token valid until %s\n", cred.CashierName, cred.ExpirationDate)
			return nil
		}),
	}
	register.Flags().StringVar(&cashier, "cashier", "", "cashier name shown on the terminal")
	_ = register.MarkFlagRequired("cashier")

	deviceInfo := &cobra.Command{
		Use:   "device-info",
		Short: "Show terminal information",
		RunE: withClient(func(ctx context.Context, c *payment.Client, cmd *cobra.Command) error {
			info, err := c.DeviceInfo(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "POS %s, serial %s, terminal %s\n", info.PosNum, info.SerialNum, info.TerminalID)
			return nil
		}),
	}

	var amount string
	var timeout time.Duration
	pay := &cobra.Command{
		Use:   "pay",
		Short: "Take a payment and wait for the result",
		RunE: withClient(func(ctx context.Context, c *payment.Client, cmd *cobra.Command) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			tx, err := c.AwaitPayment(ctx, value)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tx)
		}),
	}
	pay.Flags().StringVar(&amount, "amount", "", "amount to charge")
	pay.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "how long to wait for the customer")
	_ = pay.MarkFlagRequired("amount")

	logout := &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved terminal credential",
		RunE: withClient(func(ctx context.Context, c *payment.Client, cmd *cobra.Command) error {
			if err := c.Forget(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Terminal credential removed")
			return nil
		}),
	}

	cmd.AddCommand(register, deviceInfo, pay, logout)
	return cmd
}
