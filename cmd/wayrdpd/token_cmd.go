package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lamco-admin/wayland-rdp-sub001/internal/credential"
)

const screenCastTokenKey = "screencast-restore-token"

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Inspect or clear the persisted portal restore token"}
	cmd.AddCommand(newTokenShowCmd())
	cmd.AddCommand(newTokenClearCmd())
	return cmd
}

func newTokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print which credential backend holds the restore token, and whether one is stored",
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
			if dep.tokens == nil {
				fmt.Println("no credential backend available")
				return nil
			}

			_, err = dep.tokens.Load(ctx, screenCastTokenKey)
			switch {
			case err == nil:
				fmt.Printf("backend: %s\nstored:  yes\n", dep.tokens.Name())
			case errors.Is(err, credential.ErrNotFound):
				fmt.Printf("backend: %s\nstored:  no\n", dep.tokens.Name())
			default:
				return err
			}
			return nil
		},
	}
}

func newTokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted portal restore token, forcing a fresh picker dialog next launch",
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
			if dep.tokens == nil {
				return fmt.Errorf("no credential backend available")
			}
			if err := dep.tokens.Delete(ctx, screenCastTokenKey); err != nil {
				return err
			}
			fmt.Println("restore token cleared")
			return nil
		},
	}
}
