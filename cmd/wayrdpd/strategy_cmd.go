package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStrategyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "strategy", Short: "Inspect session-establishment strategy selection"}
	cmd.AddCommand(newStrategyProbeCmd())
	return cmd
}

func newStrategyProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Detect capabilities and print the snapshot and advertised services; does not pick a strategy or establish a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := waitOrDeadline(cmd.Context(), probeTimeout)
			defer cancel()

			dep, err := newDeployment(ctx)
			if err != nil {
				return err
			}
			if dep.client != nil {
				defer dep.client.Close()
			}

			snap := dep.registry.Snapshot()
			fmt.Printf("compositor:        %s %s\n", snap.Compositor, snap.CompositorVersion)
			fmt.Printf("deployment:        %s\n", snap.Deployment)
			fmt.Printf("portal version:    %d\n", snap.Portal.Version)
			fmt.Printf("restore tokens:    %v\n", snap.Portal.HasRestoreToken)
			fmt.Printf("credential store:  %s\n", storeName(dep.tokens))
			fmt.Printf("data directory:    %s\n", dep.dataDir)
			fmt.Println()
			fmt.Println("advertised services:")
			for _, svc := range dep.registry.All() {
				fmt.Printf("  %-22s %s\n", svc.ID, svc.Level)
			}
			return nil
		},
	}
}

func storeName(s interface{ Name() string }) string {
	if s == nil {
		return "none"
	}
	return s.Name()
}
