package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/spetr/ragchat/internal/config"
	"github.com/spetr/ragchat/pkg/plugin/host"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.ConfigPath(".")
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		fmt.Printf("Created config at %s\n", path)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and check that backends answer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigValidate()
	},
}

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Plugin management",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available plugins",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPluginList()
	},
}

func init() {
	configInitCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	pluginCmd.AddCommand(pluginListCmd)
}

func runConfigValidate() error {
	errs := config.Validate(cfg)
	if len(errs) > 0 {
		for _, e := range errs {
			color.Red("Error: %v", e)
		}
		return fmt.Errorf("configuration has %d error(s)", len(errs))
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	failed := 0
	check := func(name string, fn func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.HealthTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			failed++
			color.Red("[fail] %s: %v", name, err)
			return
		}
		color.Green("[ok]   %s", name)
	}

	check("vector store ("+a.store.Name()+")", a.store.Heartbeat)
	check("ollama ("+cfg.Ollama.Endpoint+")", a.ollama.Ping)
	check("mcp ("+cfg.MCP.Endpoint+")", a.mcpChat.Ping)
	check("embedding ("+a.embedding.Name()+")", func(ctx context.Context) error {
		_, err := a.embedding.Embed(ctx, []string{"ping"})
		return err
	})

	if failed > 0 {
		return fmt.Errorf("%d backend check(s) failed", failed)
	}
	fmt.Println("\nConfiguration is valid")
	return nil
}

func runPluginList() error {
	manager := host.NewManager(cfg.Plugins.Dir, logger)
	available, err := manager.DiscoverPlugins()
	if err != nil {
		return err
	}

	fmt.Printf("Plugins directory: %s\n\n", projectPath(cfg.Plugins.Dir))
	if len(available) == 0 {
		fmt.Println("No plugins found.")
		fmt.Println("\nTo install a plugin:")
		fmt.Println("  1. Build or download a plugin binary")
		fmt.Printf("  2. Copy it to %s\n", cfg.Plugins.Dir)
		fmt.Println("  3. Make it executable (chmod +x)")
		return nil
	}

	for _, name := range available {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("\nTo use a plugin, set embedding.provider or reranker.provider to")
	fmt.Println("  plugin:<name>")
	return nil
}
