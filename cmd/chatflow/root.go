package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/chatflow"
	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/seed"
	"github.com/aretw0/chatflow/pkg/adapters/memory"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Chatflow builds and serves guided chat conversations",
	Long: `Chatflow lets operators author question flows, attach them to plans,
and talk to them through the same chat widget visitors use.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().String("api", "http://localhost:8080", "Base URL of the chatflow server")
	rootCmd.PersistentFlags().String("app", "", "App id to work on")
	rootCmd.PersistentFlags().String("seed", "", "Read flows from a seed file instead of the server")
}

func loadConfig(cmd *cobra.Command) config.Config {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openWorkspace works against the server, or against an in-memory copy of
// the seed file when --seed is given.
func openWorkspace(cmd *cobra.Command) *chatflow.Workspace {
	cfg := loadConfig(cmd)
	appID, _ := cmd.Flags().GetString("app")
	if appID == "" {
		appID = cfg.Widget.AppID
	}
	if appID == "" {
		fmt.Println("Error: --app is required")
		os.Exit(1)
	}
	logger := cfg.Logger()

	seedPath, _ := cmd.Flags().GetString("seed")
	if seedPath == "" {
		api, _ := cmd.Flags().GetString("api")
		return chatflow.NewRemoteWorkspace(appID, api, chatflow.WithLogger(logger))
	}

	doc, err := seed.Load(seedPath)
	if err != nil {
		fmt.Printf("Error reading seed: %v\n", err)
		os.Exit(1)
	}
	store := memory.NewStore()
	if _, err := seed.Apply(context.Background(), doc, store, store); err != nil {
		fmt.Printf("Error applying seed: %v\n", err)
		os.Exit(1)
	}
	return chatflow.NewWorkspace(appID, store, chatflow.WithLogger(logger))
}

func mustLoad(ctx context.Context, ws *chatflow.Workspace) {
	if err := ws.Load(ctx); err != nil {
		fmt.Printf("Error loading app %q: %v\n", ws.AppID, err)
		os.Exit(1)
	}
}
