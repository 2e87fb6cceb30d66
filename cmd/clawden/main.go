// Package main implements the clawden CLI: the collaborator-level surface
// spec.md §6 names (init/install/uninstall/up/run/ps/stop/logs/dashboard/
// doctor/channels), built on top of the Process Supervisor for direct-mode
// runtimes, grounded on the pack's spf13/cobra-based CLI convention
// (go-mizu's cmd/) rather than anything the teacher itself ships, since the
// teacher has no standalone CLI binary of its own.
package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/codervisor/clawden/internal/config"
	"github.com/codervisor/clawden/internal/logger"
	"github.com/codervisor/clawden/internal/manifest"
	"github.com/codervisor/clawden/internal/runtimekind"
	"github.com/codervisor/clawden/internal/supervisor"
)

func newSupervisor() (*supervisor.Supervisor, *logger.Logger, error) {
	log, err := logger.New(logger.Config{Level: "info", Format: "console", OutputPath: "stdout"})
	if err != nil {
		return nil, nil, err
	}
	stateDir, err := config.StateDir()
	if err != nil {
		return nil, nil, err
	}
	sup, err := supervisor.New(stateDir, log)
	if err != nil {
		return nil, nil, err
	}
	return sup, log, nil
}

func executablePathFor(runtimeKind string) string {
	if env := os.Getenv("CLAWDEN_" + runtimeKind + "_EXECUTABLE"); env != "" {
		return env
	}
	return runtimeKind + "-agent"
}

func main() {
	root := &cobra.Command{
		Use:   "clawden",
		Short: "Run and supervise clawden agent runtimes outside of Docker",
	}

	root.AddCommand(
		newInitCmd(),
		newUpCmd(),
		newRunCmd(),
		newStopCmd(),
		newPsCmd(),
		newLogsCmd(),
		newDoctorCmd(),
		newChannelsCmd(),
		newDashboardCmd(),
		newInstallCmd(),
		newUninstallCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the $HOME/.clawden state directory layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := newSupervisor(); err != nil {
				return err
			}
			stateDir, err := config.StateDir()
			if err != nil {
				return err
			}
			fmt.Printf("initialized clawden state under %s\n", stateDir)
			return nil
		},
	}
}

func newUpCmd() *cobra.Command {
	var noDocker bool
	cmd := &cobra.Command{
		Use:   "up <runtime-kind>",
		Short: "Start a runtime in the foreground's background (direct-mode daemon)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := runtimekind.Parse(args[0])
			if !ok {
				return fmt.Errorf("unrecognized runtime kind %q", args[0])
			}
			mode := supervisor.ResolveExecutionMode(supervisor.ModeAuto, noDocker)
			if mode == supervisor.ModeDocker {
				fmt.Println("docker is available; run the agent through the HTTP Edge's register+start instead of `clawden up` for container-backed runtimes")
				return nil
			}
			sup, log, err := newSupervisor()
			if err != nil {
				return err
			}
			info, err := sup.Start(kind.String(), executablePathFor(kind.String()), nil)
			if err != nil {
				return err
			}
			log.Info("started runtime", zap.String("runtime_name", info.RuntimeName), zap.Int("pid", info.PID))
			fmt.Printf("started %s (pid %d), logs at %s\n", info.RuntimeName, info.PID, info.LogFilePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noDocker, "no-docker", false, "force direct-mode execution even if Docker is available")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <runtime-kind> -- [args...]",
		Short: "Start a runtime directly, forwarding extra args to its executable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := runtimekind.Parse(args[0])
			if !ok {
				return fmt.Errorf("unrecognized runtime kind %q", args[0])
			}
			sup, _, err := newSupervisor()
			if err != nil {
				return err
			}
			info, err := sup.Start(kind.String(), executablePathFor(kind.String()), args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("started %s (pid %d), logs at %s\n", info.RuntimeName, info.PID, info.LogFilePath)
			return nil
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <runtime-kind>",
		Short: "Stop a direct-mode runtime, escalating SIGTERM to SIGKILL after 2s",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := runtimekind.Parse(args[0])
			if !ok {
				return fmt.Errorf("unrecognized runtime kind %q", args[0])
			}
			sup, _, err := newSupervisor()
			if err != nil {
				return err
			}
			if err := sup.Stop(kind.String()); err != nil {
				return err
			}
			fmt.Printf("stopped %s\n", kind.String())
			return nil
		},
	}
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "List every direct-mode runtime this supervisor knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := newSupervisor()
			if err != nil {
				return err
			}
			statuses, err := sup.ListStatuses(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "RUNTIME\tPID\tALIVE\tHEALTH\tMODE")
			for _, st := range statuses {
				fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\n", st.RuntimeName, st.Info.PID, st.Alive, st.Health, st.Info.ExecutionMode)
			}
			return w.Flush()
		},
	}
}

func newLogsCmd() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <runtime-kind>",
		Short: "Print the tail of a runtime's direct-mode log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := runtimekind.Parse(args[0])
			if !ok {
				return fmt.Errorf("unrecognized runtime kind %q", args[0])
			}
			sup, _, err := newSupervisor()
			if err != nil {
				return err
			}
			tail, err := sup.TailLogs(kind.String(), lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "number of trailing lines to print")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the local environment can run clawden",
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := newSupervisor()
			if err != nil {
				fmt.Printf("[FAIL] state directory: %v\n", err)
				return nil
			}
			fmt.Println("[ OK ] state directory initialized")

			mode := supervisor.ResolveExecutionMode(supervisor.ModeAuto, false)
			if mode == supervisor.ModeDocker {
				fmt.Println("[ OK ] docker available, container-backed runtimes can run")
			} else {
				fmt.Println("[WARN] docker unavailable, only direct-mode runtimes will work")
			}

			if _, err := os.Stat(sup.RunDir()); err != nil {
				fmt.Printf("[FAIL] run directory: %v\n", err)
			} else {
				fmt.Println("[ OK ] run directory writable")
			}
			return nil
		},
	}
}

func newChannelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "channels",
		Short: "List every recognized messaging channel type and its requirements",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "CHANNEL\tREQUIRES_BOT_TOKEN")
			for name, meta := range m.Channels {
				fmt.Fprintf(w, "%s\t%s\n", name, strconv.FormatBool(meta.RequiresBotToken))
			}
			return w.Flush()
		},
	}
}

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Print the URL of the clawden-server fleet status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Printf("open http://localhost:%d/fleet/status in a browser, or GET /channels/matrix/stream for live updates\n", cfg.Server.Port)
			return nil
		},
	}
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install <runtime-kind> <version>",
		Short: "Reserve the runtimes/<kind>/<version>/current directory for a runtime install",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := runtimekind.Parse(args[0])
			if !ok {
				return fmt.Errorf("unrecognized runtime kind %q", args[0])
			}
			sup, _, err := newSupervisor()
			if err != nil {
				return err
			}
			dir := sup.RuntimeCurrentDir(kind.String(), args[1])
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			fmt.Printf("reserved %s; place the %s executable there before running `clawden up %s`\n", dir, kind.String(), kind.String())
			return nil
		},
	}
}

func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <runtime-kind> <version>",
		Short: "Remove a previously installed runtime version's directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := runtimekind.Parse(args[0])
			if !ok {
				return fmt.Errorf("unrecognized runtime kind %q", args[0])
			}
			sup, _, err := newSupervisor()
			if err != nil {
				return err
			}
			dir := sup.RuntimeCurrentDir(kind.String(), args[1])
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
			fmt.Printf("removed %s\n", dir)
			return nil
		},
	}
}
