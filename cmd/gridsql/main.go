// gridsql is the cluster node binary: it serves exchange traffic for the
// cluster and runs distributed queries from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gridsql/config"
	"gridsql/core"
	"gridsql/distributed/communication"
	"gridsql/distributed/coordinator"
	"gridsql/scheduler"
	"gridsql/session"
	"gridsql/sqlfront"
)

var flagConfig string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "gridsql",
		Short:        "gridsql — distributed SQL over parquet",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "gridsql.yaml", "Path to the node configuration file")
	root.AddCommand(
		newServeCmd(),
		newQueryCmd(),
		newExplainCmd(),
		newStatusCmd(),
	)
	return root
}

// startCoordinator builds the local node's coordinator from the config
// file and starts its exchange server.
func startCoordinator() (*coordinator.Coordinator, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	cfg.ApplyTracing()

	topology, err := cfg.BuildCluster()
	if err != nil {
		return nil, err
	}
	cat, err := cfg.BuildCatalog()
	if err != nil {
		return nil, err
	}
	var transport communication.Transport
	if cfg.Transport == "memory" {
		transport = communication.NewMemoryTransport()
	} else {
		transport = communication.NewHTTPTransport()
	}
	return coordinator.NewCoordinator(topology, cat, transport, communication.ParseCodec(cfg.Codec))
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve exchange traffic for the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := startCoordinator()
			if err != nil {
				return err
			}
			defer coord.Stop()

			fmt.Println("gridsql node serving; press Ctrl+C to stop")
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
			<-stop
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL query across the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := startCoordinator()
			if err != nil {
				return err
			}
			defer coord.Stop()

			result, err := coord.ExecuteQuery(context.Background(), args[0])
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(os.Stdout)
			for _, row := range result.Rows {
				if err := encoder.Encode(row); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stderr, "%d rows in %s\n", result.Count, result.Duration)
			return nil
		},
	}
}

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <sql>",
		Short: "Show the scheduled plan without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(flagConfig)
			if err != nil {
				return err
			}
			topology, err := cfg.BuildCluster()
			if err != nil {
				return err
			}

			plan, err := sqlfront.Parse(args[0])
			if err != nil {
				return err
			}
			plan = scheduler.NewScattersOptimizer(topology).Optimize(plan)

			localPlan, tasks, err := scheduler.Reschedule(session.NewQueryContext(topology), plan)
			if err != nil {
				return err
			}
			fmt.Println("local plan:")
			fmt.Print(core.FormatPlan(localPlan))
			for _, assignment := range tasks {
				fmt.Printf("task %s on %s:\n", assignment.Task.StageID, assignment.Node.Name)
				fmt.Print(core.FormatPlan(assignment.Task.Plan))
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show every cluster node's health",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := startCoordinator()
			if err != nil {
				return err
			}
			defer coord.Stop()

			statuses, err := coord.ClusterStatus(context.Background())
			for _, status := range statuses {
				fmt.Printf("%-20s active_tasks=%d up_since=%s\n",
					status.Name, status.ActiveTasks, status.StartedAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Printf("coordinator: %s\n", coord.Metrics().Summary())
			return err
		},
	}
}
