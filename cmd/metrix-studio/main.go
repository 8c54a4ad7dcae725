// Package main provides the metrix-studio CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexepic/metrix-studio/pkg/audit"
	"github.com/nexepic/metrix-studio/pkg/config"
	"github.com/nexepic/metrix-studio/pkg/driver"
	"github.com/nexepic/metrix-studio/pkg/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "metrix-studio",
		Short: "Metrix Studio - query workbench for embedded graph databases",
		Long: `Metrix Studio opens graph databases through a native engine,
runs Cypher queries against them and decodes the results into rows,
nodes and edges.

Engines:
  • metrix  the native Metrix library
  • kuzu    embedded Kùzu databases
  • bolt    any Bolt server (the path is a bolt:// URI)`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("METRIX_CONFIG"), "Path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "metrix-studio v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Address to bind (overrides config)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)

	queryCmd := &cobra.Command{
		Use:   "query <db-path> <cypher>",
		Short: "Run one query and print the result as JSON",
		Args:  cobra.ExactArgs(2),
		RunE:  runQuery,
	}
	queryCmd.Flags().Bool("existing", false, "Fail instead of creating a missing database")
	rootCmd.AddCommand(queryCmd)

	shellCmd := &cobra.Command{
		Use:   "shell [db-path]",
		Short: "Interactive query shell",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runShellCmd,
	}
	rootCmd.AddCommand(shellCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show or clear the query history",
		RunE:  runHistory,
	}
	historyCmd.Flags().Int("limit", 20, "Number of entries to show")
	historyCmd.Flags().Bool("clear", false, "Delete every entry")
	rootCmd.AddCommand(historyCmd)

	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show recently used databases",
		RunE:  runRecent,
	}
	recentCmd.Flags().String("forget", "", "Remove PATH from the list")
	rootCmd.AddCommand(recentCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE:  runInit,
	}
	initCmd.Flags().String("dir", ".", "Directory for metrix.yaml")
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initCmd)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Search the audit journal",
		RunE:  runAudit,
	}
	auditCmd.Flags().StringSlice("type", nil, "Event types to include")
	auditCmd.Flags().String("path", "", "Only events for this database")
	auditCmd.Flags().Bool("failed", false, "Only failures")
	auditCmd.Flags().Int("limit", 50, "Maximum events to show")
	rootCmd.AddCommand(auditCmd)

	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setup loads the config and builds the app around the configured engine.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	engine, err := buildEngine(cfg.Engine)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, engine)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	engine, err := buildEngine(cfg.Engine)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, engine)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(a.service, server.ConfigFrom(cfg.Server), a.logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Metrix Studio v%s\n", version)
	fmt.Fprintf(out, "  Engine:  %s\n", cfg.Engine.Name)
	fmt.Fprintf(out, "  HTTP:    http://%s\n", srv.Addr())
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(out, "\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("error stopping server: %w", err)
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if existing, _ := cmd.Flags().GetBool("existing"); existing {
		_, err = a.service.ConnectExisting(ctx, args[0])
	} else {
		_, err = a.service.OpenDatabase(ctx, args[0])
	}
	if err != nil {
		return err
	}

	res, err := a.service.RunQuery(ctx, args[1])
	if err != nil {
		return fmt.Errorf("%s: %w", driver.KindName(err), err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runShellCmd(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Metrix Studio v%s (%s engine). Type :help for commands.\n", version, a.cfg.Engine.Name)
	if len(args) == 1 {
		msg, err := a.service.OpenDatabase(ctx, args[0])
		if err != nil {
			printError(out, err)
		} else {
			fmt.Fprintln(out, msg)
		}
	}
	return runShell(ctx, a.service, cmd.InOrStdin(), out)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if clearAll, _ := cmd.Flags().GetBool("clear"); clearAll {
		if err := a.service.ClearHistory(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
		return nil
	}
	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := a.service.History(limit)
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), entries)
	return nil
}

func runRecent(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if path, _ := cmd.Flags().GetString("forget"); path != "" {
		return a.service.ForgetConnection(path)
	}
	recent, err := a.service.RecentConnections()
	if err != nil {
		return err
	}
	printRecent(cmd.OutOrStdout(), recent)
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	force, _ := cmd.Flags().GetBool("force")

	path := filepath.Join(dir, "metrix.yaml")
	if err := config.Default().WriteFile(path, force); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	q := audit.Query{}
	types, _ := cmd.Flags().GetStringSlice("type")
	for _, t := range types {
		q.Types = append(q.Types, driver.EventType(t))
	}
	q.Path, _ = cmd.Flags().GetString("path")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	if failed, _ := cmd.Flags().GetBool("failed"); failed {
		success := false
		q.Success = &success
	}

	res, err := audit.NewReader(cfg.Audit.LogPath).Query(q)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, e := range res.Events {
		fmt.Fprintf(out, "%s  #%d  %-22s  %s", e.Timestamp.Local().Format(time.RFC3339), e.Seq, e.Type, e.Path)
		if e.Message != "" {
			fmt.Fprintf(out, "  %s", e.Message)
		}
		fmt.Fprintln(out)
	}
	if res.HasMore {
		fmt.Fprintf(out, "... %d of %d shown\n", len(res.Events), res.TotalCount)
	}
	return nil
}
