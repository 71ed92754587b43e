// Package main provides the boltprobe CLI entry point: a small
// diagnostic tool for exercising the handshake and protocol-selection
// code from a terminal against a live Bolt endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/orneryd/nornic-bolt-go/pkg/bolt"
	"github.com/orneryd/nornic-bolt-go/pkg/config"
	"github.com/orneryd/nornic-bolt-go/pkg/messages"
	"github.com/orneryd/nornic-bolt-go/pkg/protocol"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "boltprobe",
		Short: "boltprobe - Neo4j Bolt protocol diagnostic CLI",
		Long: `boltprobe drives the nornic-bolt-go handshake and protocol
engine against a live Bolt endpoint, for exercising version negotiation
and basic RUN/PULL exchanges from a terminal.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("boltprobe v%s (%s)\n", version, commit)
		},
	})

	handshakeCmd := &cobra.Command{
		Use:   "handshake [address]",
		Short: "Perform only the version-negotiation handshake and print the result",
		Args:  cobra.ExactArgs(1),
		RunE:  runHandshake,
	}
	handshakeCmd.Flags().Duration("dial-timeout", 5*time.Second, "TCP dial timeout")
	rootCmd.AddCommand(handshakeCmd)

	runCmd := &cobra.Command{
		Use:   "run [address] [query]",
		Short: "Connect, HELLO, and execute a single query, printing records and summary",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuery,
	}
	runCmd.Flags().String("config", "", "Path to a YAML options file (spec §6.4 options)")
	runCmd.Flags().String("user-agent", "", "Override user_agent (takes precedence over --config)")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

func runHandshake(cmd *cobra.Command, args []string) error {
	address := args[0]
	dialTimeout, _ := cmd.Flags().GetDuration("dial-timeout")

	channel, err := bolt.DialTCP(address, dialTimeout, 10*time.Second, 10*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	defer channel.Close()

	v, err := bolt.PingHandshake(channel, nil)
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	fmt.Printf("negotiated protocol version: %s\n", v.String())
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	address, query := args[0], args[1]
	configPath, _ := cmd.Flags().GetString("config")
	userAgent, _ := cmd.Flags().GetString("user-agent")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}

	channel, err := bolt.DialTCP(address, 5*time.Second, 30*time.Second, 30*time.Second)
	if err != nil {
		return fmt.Errorf("dial %s: %w", address, err)
	}
	defer channel.Close()

	conn, err := bolt.Connect(context.Background(), channel, bolt.Options{
		Protocol: protocol.Options{IntegerPolicy: cfg.IntegerPolicy()},
		Hello: messages.HelloOptions{
			UserAgent:         cfg.UserAgent,
			ServerSideRouting: routingOption(cfg),
			BoltAgent:         cfg.BoltAgent,
		},
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	fmt.Printf("connected, negotiated protocol version %s\n", conn.Version())

	records, meta, err := conn.RunSync(protocol.RunOptions{Query: query, FetchSize: cfg.FetchSize})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	for i, rec := range records {
		fmt.Printf("record[%d]: %v\n", i, rec.Values)
	}
	fmt.Printf("summary: %v\n", meta)
	return nil
}

func routingOption(cfg *config.Config) map[string]any {
	if !cfg.ServerSideRouting {
		return nil
	}
	return map[string]any{}
}
