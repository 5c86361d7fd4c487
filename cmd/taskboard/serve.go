package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/taskboard/internal/api"
	"github.com/aristath/taskboard/internal/backend"
	"github.com/aristath/taskboard/internal/persistence"
	"github.com/aristath/taskboard/internal/task"
)

func (a *app) openLocal(cmd *cobra.Command) (*backend.Local, func(), error) {
	store, err := persistence.Open(cmd.Context(), a.cfg.Database.Driver, a.cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	local := backend.NewLocal(store,
		backend.WithPolicy(a.cfg.Policy()),
		backend.WithLogger(a.logger),
	)
	return local, func() { store.Close() }, nil
}

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task REST API from the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			local, closeStore, err := a.openLocal(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			a.logger.Info("starting server", "addr", addr, "driver", a.cfg.Database.Driver)
			return api.New(local, a.logger).ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

func seedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Import task snapshots from a JSON array into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			tasks, err := task.DecodeSnapshots(data)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}

			local, closeStore, err := a.openLocal(cmd)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := local.Import(cmd.Context(), tasks); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d tasks\n", len(tasks))
			return nil
		},
	}
}

func listCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks from the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.cfg.Actor()
			if err != nil {
				return err
			}
			client, err := backend.New(backend.Config{Type: "http", ServerURL: a.cfg.ServerURL}, nil, a.logger)
			if err != nil {
				return err
			}
			tasks, err := client.ListTasks(backend.WithActor(cmd.Context(), user))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tTITLE")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Status, t.Title)
			}
			return w.Flush()
		},
	}
}
