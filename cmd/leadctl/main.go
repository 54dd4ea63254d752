// Command leadctl inspects and maintains the persisted submissions and visit
// counter. It works on the files or database directly, so run it while the
// server is stopped: the server only reads the storage at startup.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/auth"
	"github.com/mbolis/leadbox/config"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/model"
	"github.com/mbolis/leadbox/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:          "leadctl",
		Short:        "Maintain leadbox submissions and visit counter",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(cmd.ErrOrStderr())
			log.SetLevel(log.WarnLevel)
			if debug {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	config.StorageFlags(root.PersistentFlags())
	root.PersistentFlags().BoolVar(&debug, "debug", false, "log at DEBUG level")

	root.AddCommand(
		hashPasswordCmd(),
		listCmd(),
		statsCmd(),
		deleteCmd(),
		visitsCmd(),
		resetVisitsCmd(),
	)
	return root
}

// withStores opens the configured backend and runs fn against both stores.
func withStores(cmd *cobra.Command, fn func(*store.SubmissionStore, *store.VisitCounter) error) error {
	sc, err := config.LoadStorage(cmd.Flags())
	if err != nil {
		return err
	}
	backend, err := app.OpenBackend(sc)
	if err != nil {
		return err
	}
	defer backend.Close()

	subs, visits, err := app.OpenStores(backend)
	if err != nil {
		return err
	}
	return fn(subs, visits)
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print the bcrypt hash to use as --admin-password-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}

func listCmd() *cobra.Command {
	var formType string
	var offset, limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(subs *store.SubmissionStore, _ *store.VisitCounter) error {
				var list []model.FormSubmission
				if formType != "" {
					list = subs.ListByType(model.FormType(formType))
				} else {
					list = subs.List()
				}
				return printJSON(cmd.OutOrStdout(), store.Page(list, offset, limit))
			})
		},
	}
	cmd.Flags().StringVar(&formType, "type", "", "only list this form type")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many submissions")
	cmd.Flags().IntVar(&limit, "limit", 0, "list at most this many submissions (0 = all)")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print submission totals per form type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(subs *store.SubmissionStore, _ *store.VisitCounter) error {
				return printJSON(cmd.OutOrStdout(), subs.Stats())
			})
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete submissions by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(subs *store.SubmissionStore, _ *store.VisitCounter) error {
				for _, id := range args {
					deleted, err := subs.Delete(id)
					if err != nil {
						return err
					}
					if deleted {
						fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "not found %s\n", id)
					}
				}
				return nil
			})
		},
	}
}

func visitsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visits",
		Short: "Print the visit counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(_ *store.SubmissionStore, visits *store.VisitCounter) error {
				return printJSON(cmd.OutOrStdout(), visits.Get())
			})
		},
	}
}

func resetVisitsCmd() *cobra.Command {
	var to int
	var reason, by string
	cmd := &cobra.Command{
		Use:   "reset-visits",
		Short: "Reset the visit counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd, func(_ *store.SubmissionStore, visits *store.VisitCounter) error {
				counter, err := visits.Reset(&to, reason, by)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), counter)
			})
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "new total visit count")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the reset")
	cmd.Flags().StringVar(&by, "by", "leadctl", "name recorded as the resetting admin")
	return cmd
}
