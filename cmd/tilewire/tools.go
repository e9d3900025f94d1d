package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tilewire-project/tilewire/internal/capture"
	"github.com/tilewire-project/tilewire/internal/cli"
	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/packets"
	"github.com/tilewire-project/tilewire/internal/protocol"
)

func decodeCmd() *cobra.Command {
	var side string

	cmd := &cobra.Command{
		Use:   "decode <hex>...",
		Short: "Decode one frame given as hex",
		Long: `Decode one frame and print its fields as JSON.

The hex dump may be split across arguments and may contain spaces or
colons. Use --context client to read the frame the way a client would.

Examples:
  tilewire decode 0800100164009001
  tilewire decode --context client "08 00 10 01 64 00 90 01"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := protocol.ParseContext(side)
			if err != nil {
				return err
			}
			frame, err := protocol.ParseHex(strings.Join(args, ""))
			if err != nil {
				return err
			}
			codec, err := packets.NewCodec()
			if err != nil {
				return err
			}
			return cli.PrintDecode(cmd.OutOrStdout(), codec, frame, ctx)
		},
	}

	cmd.Flags().StringVarP(&side, "context", "c", "server", "Decode context: server or client")

	return cmd
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered message types",
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := packets.NewCodec()
			if err != nil {
				return err
			}
			cli.PrintTypes(cmd.OutOrStdout(), codec)
			return nil
		},
	}
}

func capturesCmd() *cobra.Command {
	var (
		dbPath  string
		reason  string
		session string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "captures",
		Short: "List frames in the capture store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(dbPath); err != nil {
				return fmt.Errorf("capture database %s: %w", dbPath, err)
			}
			store, err := capture.NewStore(dbPath, 0)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(context.Background(), capture.Filter{
				Reason:    capture.Reason(reason),
				SessionID: session,
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			cli.PrintCaptures(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", config.DefaultConfig().Capture.DBPath, "Capture database path")
	cmd.Flags().StringVar(&reason, "reason", "", "Only show captures with this reason (unknown, desync)")
	cmd.Flags().StringVar(&session, "session", "", "Only show captures from this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of captures")

	return cmd
}

func checkCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result := config.Validate(cfg)
			for _, w := range result.Warnings {
				fmt.Fprintf(out, "warning: %s\n", w.Error())
			}
			for _, e := range result.Errors {
				fmt.Fprintf(out, "error:   %s\n", e.Error())
			}
			if !result.IsValid() {
				return fmt.Errorf("%s has %d error(s)", cfg.Path(), len(result.Errors))
			}
			fmt.Fprintf(out, "%s is valid\n", cfg.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config", config.DefaultConfigDir, "Configuration directory")

	return cmd
}
