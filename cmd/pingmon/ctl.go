package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/wellsgz/pingmon/internal/events"
	"github.com/wellsgz/pingmon/internal/ipc"
	"github.com/wellsgz/pingmon/internal/probe"
	"github.com/wellsgz/pingmon/internal/stats"
)

var (
	recentCount   int
	updateAddress string
	updateLabel   string
	historySince  time.Duration
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control a running monitor over its socket",
	Long: `Send control commands to a monitor started with 'pingmon serve'.

Examples:
  pingmon ctl start
  pingmon ctl stats
  pingmon ctl add 9.9.9.9 "Quad9 DNS"
  pingmon ctl interval 2s
  pingmon ctl watch`,
}

// withClient connects to the monitor and runs fn
func withClient(fn func(c *ipc.Client) error) error {
	socket, err := resolveSocket()
	if err != nil {
		return err
	}
	c, err := ipc.Connect(socket)
	if err != nil {
		return fmt.Errorf("%w (is 'pingmon serve' running?)", err)
	}
	defer c.Close()
	return fn(c)
}

// simple builds a subcommand that runs one argument-less control call
func simple(use, short, done string, call func(c *ipc.Client) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(c *ipc.Client) error {
				if err := call(c); err != nil {
					return err
				}
				fmt.Println(done)
				return nil
			})
		},
	}
}

var ctlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the monitor state and statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			state, err := c.State()
			if err != nil {
				return err
			}
			all, err := c.AllStats()
			if err != nil {
				return err
			}
			if outputAsJSON {
				return printJSON(map[string]any{"state": state, "stats": all})
			}
			fmt.Printf("State: %s\n\n", headerStyle.Render(state.String()))
			printStats(all)
			return nil
		})
	},
}

var ctlStatsCmd = &cobra.Command{
	Use:   "stats [address]",
	Short: "Show statistics for every target or one address",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			if len(args) == 1 {
				s, err := c.Stats(args[0])
				if err != nil {
					return err
				}
				if outputAsJSON {
					return printJSON(s)
				}
				printStats([]stats.Statistics{s})
				return nil
			}

			all, err := c.AllStats()
			if err != nil {
				return err
			}
			if outputAsJSON {
				return printJSON(all)
			}
			printStats(all)
			return nil
		})
	},
}

var ctlRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show the most recent outcomes, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			outcomes, err := c.Recent(recentCount)
			if err != nil {
				return err
			}
			if outputAsJSON {
				return printJSON(outcomes)
			}
			for _, o := range outcomes {
				printOutcome(o)
			}
			return nil
		})
	},
}

var ctlIntervalCmd = &cobra.Command{
	Use:   "interval <duration>",
	Short: "Set the poll interval, e.g. 500ms or 2s",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			return fmt.Errorf("invalid interval: %w", err)
		}
		return withClient(func(c *ipc.Client) error {
			if err := c.SetPollInterval(d); err != nil {
				return err
			}
			fmt.Printf("Poll interval set to %s\n", d)
			return nil
		})
	},
}

var ctlTargetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			targets, err := c.Targets()
			if err != nil {
				return err
			}
			if outputAsJSON {
				return printJSON(targets)
			}
			printTargets(targets)
			return nil
		})
	},
}

var ctlAddCmd = &cobra.Command{
	Use:   "add <address> [label]",
	Short: "Add a target",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		label := ""
		if len(args) == 2 {
			label = args[1]
		}
		return withClient(func(c *ipc.Client) error {
			t, err := c.AddTarget(args[0], label)
			if err != nil {
				return err
			}
			fmt.Printf("Added %s as %s\n", t.Address, t.ID)
			return nil
		})
	},
}

var ctlRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			if err := c.RemoveTarget(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %s\n", args[0])
			return nil
		})
	},
}

var ctlUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change a target's address or label",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			label := updateLabel
			if !cmd.Flags().Changed("label") {
				// Keep the current label when only the address changes
				targets, err := c.Targets()
				if err != nil {
					return err
				}
				for _, t := range targets {
					if t.ID == args[0] {
						label = t.Label
					}
				}
			}
			t, err := c.UpdateTarget(args[0], updateAddress, label)
			if err != nil {
				return err
			}
			fmt.Printf("Updated %s: %s %q\n", t.ID, t.Address, t.Label)
			return nil
		})
	},
}

var ctlToggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Enable or disable a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			enabled, err := c.ToggleTarget(args[0])
			if err != nil {
				return err
			}
			if enabled {
				fmt.Printf("Enabled %s\n", args[0])
			} else {
				fmt.Printf("Disabled %s\n", args[0])
			}
			return nil
		})
	},
}

var ctlHistoryCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "Show archived data points for an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			to := time.Now()
			points, err := c.History(args[0], to.Add(-historySince), to)
			if err != nil {
				return err
			}
			if outputAsJSON {
				// NaN cannot be encoded, so reuse the wire form
				safe := make([]ipc.DataPoint, len(points))
				for i, p := range points {
					safe[i] = ipc.DataPoint{Timestamp: p.Timestamp}
					if !math.IsNaN(p.Value) {
						v := p.Value
						safe[i].Value = &v
					}
					if !math.IsNaN(p.Loss) {
						l := p.Loss
						safe[i].Loss = &l
					}
				}
				return printJSON(safe)
			}
			for _, p := range points {
				fmt.Printf("%s  %8.2f ms  loss %.2f\n", p.Timestamp.Local().Format("2006-01-02 15:04:05"), p.Value, p.Loss)
			}
			return nil
		})
	},
}

var ctlWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream outcomes and state changes until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(c *ipc.Client) error {
			if err := c.Subscribe(); err != nil {
				return err
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sig)

			for {
				select {
				case <-sig:
					return nil
				case ev, ok := <-c.Events():
					if !ok {
						return ipc.ErrClosed
					}
					if err := printEvent(ev); err != nil {
						return err
					}
				}
			}
		})
	},
}

// printEvent renders one pushed event; stats updates are only shown as JSON
func printEvent(ev ipc.EventData) error {
	if outputAsJSON {
		return printJSON(ev)
	}
	switch ev.Channel {
	case events.PingResult:
		var o probe.Outcome
		if err := json.Unmarshal(ev.Payload, &o); err != nil {
			return err
		}
		printOutcome(o)
	case events.StateChange:
		var state string
		if err := json.Unmarshal(ev.Payload, &state); err != nil {
			return err
		}
		fmt.Println(headerStyle.Render("State: " + state))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(ctlCmd)
	ctlCmd.PersistentFlags().BoolVar(&outputAsJSON, "json", false, "output in JSON format")

	ctlCmd.AddCommand(
		simple("start", "Start monitoring (resets statistics when stopped)", "Monitoring started", (*ipc.Client).Start),
		simple("stop", "Stop monitoring", "Monitoring stopped", (*ipc.Client).Stop),
		simple("pause", "Pause monitoring, keeping statistics", "Monitoring paused", (*ipc.Client).Pause),
		simple("resume", "Resume paused monitoring", "Monitoring resumed", (*ipc.Client).Resume),
		simple("reset", "Clear statistics and history", "Statistics reset", (*ipc.Client).ResetStatistics),
		ctlStatusCmd,
		ctlStatsCmd,
		ctlRecentCmd,
		ctlIntervalCmd,
		ctlTargetsCmd,
		ctlAddCmd,
		ctlRemoveCmd,
		ctlUpdateCmd,
		ctlToggleCmd,
		ctlHistoryCmd,
		ctlWatchCmd,
	)

	ctlRecentCmd.Flags().IntVarP(&recentCount, "count", "n", 20, "number of outcomes, 0 for all")
	ctlUpdateCmd.Flags().StringVar(&updateAddress, "address", "", "new address (empty keeps the current one)")
	ctlUpdateCmd.Flags().StringVar(&updateLabel, "label", "", "new label")
	ctlHistoryCmd.Flags().DurationVar(&historySince, "since", time.Hour, "how far back to query")
}
