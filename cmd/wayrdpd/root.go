package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wayrdpd",
		Short: "Headless RDP projection server for a Linux Wayland desktop",
		Long:  `wayrdpd projects a compositor's desktop to remote RDP clients without a physical display.`,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newStrategyCmd())
	root.AddCommand(newTokenCmd())

	return root
}
