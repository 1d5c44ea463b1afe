// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/skylib/internal/fsutil"
	sklog "github.com/ManuGH/skylib/internal/log"
	"github.com/ManuGH/skylib/pkg/datastore"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain sqlite data stores",
	}
	cmd.AddCommand(newDBVerifyCmd(), newDBBackupCmd())
	return cmd
}

func newDBVerifyCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "verify <database>...",
		Short: "Check sqlite databases for corruption",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := datastore.VerifyMode(strings.ToLower(strings.TrimSpace(mode)))
			if m != datastore.VerifyQuick && m != datastore.VerifyFull {
				return fmt.Errorf("invalid mode %q: use quick or full", mode)
			}

			out := cmd.OutOrStdout()
			corrupt := 0
			for _, path := range args {
				if err := fsutil.IsRegularFile(path); err != nil {
					return err
				}
				issues, err := datastore.VerifyIntegrity(cmd.Context(), path, m)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if issues != nil {
					corrupt++
					_, _ = fmt.Fprintf(out, "%s: CORRUPT\n", path)
					for _, issue := range issues {
						_, _ = fmt.Fprintf(out, "  - %s\n", issue)
					}
					continue
				}
				_, _ = fmt.Fprintf(out, "%s: ok (%s)\n", path, m)
			}
			if corrupt > 0 {
				return fmt.Errorf("%d of %d databases failed verification", corrupt, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(datastore.VerifyQuick), "verification mode: quick or full")
	return cmd
}

func newDBBackupCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "backup <database>",
		Short: "Copy a sqlite database into its database_backups directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fsutil.IsRegularFile(args[0]); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			cfg := datastore.DefaultConfig(datastore.DriverSQLite)
			cfg.Path = args[0]
			cfg.MaxSize = 1
			pool, err := datastore.Open(ctx, cfg,
				datastore.WithName("skylibctl"),
				datastore.WithLogger(sklog.WithComponent("datastore")))
			if err != nil {
				return err
			}
			defer func() { _ = pool.Close() }()

			q := datastore.NewWriteQueue(pool, 1)
			defer func() { _ = q.Shutdown(context.Background()) }()

			dst, err := datastore.Backup(ctx, q, cfg.Path)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), dst)
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up after this long")
	return cmd
}
