package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wellsgz/pingmon/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := resolvePaths()
		if err != nil {
			return err
		}
		if err := p.EnsureDirectories(); err != nil {
			return err
		}

		created, err := p.CreateDefaultConfig()
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created %s\n", p.ConfigFile)
		} else {
			fmt.Printf("%s already exists, left unchanged\n", p.ConfigFile)
		}
		fmt.Println(mutedStyle.Render(p.String()))
		return nil
	},
}

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List well-known targets that can be added quickly",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		presets := config.PresetTargets()
		if outputAsJSON {
			return printJSON(presets)
		}
		for _, t := range presets {
			fmt.Printf("  %-16s %s\n", t.Address, t.Label)
		}
		fmt.Println()
		fmt.Println(mutedStyle.Render("Add one with: pingmon ctl add <address> <label>"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd, presetsCmd)
	presetsCmd.Flags().BoolVar(&outputAsJSON, "json", false, "output in JSON format")
}
