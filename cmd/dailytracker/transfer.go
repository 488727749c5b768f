package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"daily-tracker/internal/config"
	"daily-tracker/internal/repository"
	"daily-tracker/internal/service"
)

func exportCmd() *cobra.Command {
	var (
		userID     string
		telegramID int64
		out        string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's tasks as an export document",
		Example: `  dailytracker export --user 6f1c... --out tasks.json
  dailytracker export --telegram 123456789`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransfer(cmd.Context(), userID, telegramID, func(ctx context.Context, svc *service.TransferService, user string) error {
				var w io.Writer = cmd.OutOrStdout()
				if out != "" && out != "-" {
					f, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("create %s: %w", out, err)
					}
					defer f.Close()
					w = f
				}
				n, err := svc.Export(ctx, user, w)
				if err != nil {
					return err
				}
				log.Printf("[info] exported %d tasks for user %s", n, user)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().Int64Var(&telegramID, "telegram", 0, "telegram user id, resolved to the user id")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	return cmd
}

func importCmd() *cobra.Command {
	var (
		userID     string
		telegramID int64
		file       string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Merge an export document or task array into a user's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTransfer(cmd.Context(), userID, telegramID, func(ctx context.Context, svc *service.TransferService, user string) error {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open %s: %w", file, err)
				}
				defer f.Close()

				tasks, err := svc.Import(ctx, user, f)
				if tasks != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "imported %d tasks\n", len(tasks))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().Int64Var(&telegramID, "telegram", 0, "telegram user id, resolved to the user id")
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to import")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func withTransfer(parent context.Context, userID string, telegramID int64, fn func(context.Context, *service.TransferService, string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := openStores(parent, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	if userID == "" && telegramID == 0 {
		return fmt.Errorf("specify --user or --telegram")
	}
	user, err := repository.ResolveUserID(parent, st.users, userID, telegramID)
	if err != nil {
		return err
	}

	manager := newManager(cfg, st)
	defer manager.CloseAll()
	return fn(parent, service.NewTransferService(manager), user)
}
