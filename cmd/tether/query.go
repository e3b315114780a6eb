package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func createPortCommand() *cobra.Command {
	f := &QueryFlags{}
	cmd := &cobra.Command{
		Use:   "port",
		Short: "Print the backend port, or \"not ready\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), f.APITimeout)
			defer cancel()
			port, ok, err := newClient(f).Port(ctx)
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "not ready")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), port)
			return nil
		},
	}
	addQueryFlags(cmd, f)
	return cmd
}

func createStatusCommand() *cobra.Command {
	f := &QueryFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the backend status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), f.APITimeout)
			defer cancel()
			st, err := newClient(f).Status(ctx)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
	addQueryFlags(cmd, f)
	return cmd
}

func createPingCommand() *cobra.Command {
	f := &QueryFlags{}
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe the backend readiness endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), f.APITimeout)
			defer cancel()
			if err := newClient(f).Ping(ctx); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	addQueryFlags(cmd, f)
	return cmd
}
