package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackboxlabs/blackbox/internal/config"
)

// Version information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "blackbox",
		Short: "Blackbox - on-device voice assistant orchestrator",
		Long: `Blackbox coordinates the on-device voice pipeline: it moves audio
through the ASR, LLM and TTS workers over shared memory, keeps
conversation context in a local database, and watches the SoC thermals.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		vaultInitCmd(),
		pruneCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host: %s\n", cfg.Server.Host)
			fmt.Printf("  Port: %d\n", cfg.Server.Port)
			fmt.Println()

			fmt.Println("Pipeline:")
			fmt.Printf("  Total Deadline: %.1fs\n", cfg.Pipeline.TotalDeadline)
			fmt.Printf("  ASR Deadline:   %.1fs\n", cfg.Pipeline.ASRDeadline)
			fmt.Printf("  LLM Deadline:   %.1fs\n", cfg.Pipeline.LLMDeadline)
			fmt.Printf("  TTS Deadline:   %.1fs\n", cfg.Pipeline.TTSDeadline)
			fmt.Printf("  Max Tokens:     %d\n", cfg.Pipeline.LLMMaxTokens)
			fmt.Printf("  Context Limit:  %d\n", cfg.Pipeline.ContextLimit)
			fmt.Printf("  Default User:   %s\n", cfg.Pipeline.DefaultUser)
			fmt.Println()

			fmt.Println("Transport:")
			fmt.Printf("  Directory:     %s\n", cfg.Transport.Dir)
			fmt.Printf("  Poll Interval: %s\n", cfg.Transport.PollInterval)
			fmt.Println()

			fmt.Println("Thermal:")
			fmt.Printf("  Warning:   %.1f C\n", cfg.Thermal.WarningTemp)
			fmt.Printf("  Critical:  %.1f C\n", cfg.Thermal.CriticalTemp)
			fmt.Printf("  Cooldown:  %.1f C\n", cfg.Thermal.CooldownTemp)
			fmt.Printf("  Poll:      %s\n", cfg.Thermal.PollInterval)
			fmt.Printf("  Base Path: %s\n", cfg.Thermal.BasePath)
			fmt.Println()

			fmt.Println("Database:")
			fmt.Printf("  Path: %s\n", cfg.Database.Path)
			fmt.Println()

			fmt.Println("Vault:")
			fmt.Printf("  Argon2 Time:        %d\n", cfg.Vault.Argon2Time)
			fmt.Printf("  Argon2 Memory KiB:  %d\n", cfg.Vault.Argon2MemoryKiB)
			fmt.Printf("  Argon2 Parallelism: %d\n", cfg.Vault.Argon2Parallel)
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  BLACKBOX_SERVER_HOST, BLACKBOX_SERVER_PORT, BLACKBOX_DB_PATH")
			fmt.Println("  BLACKBOX_TOTAL_DEADLINE, BLACKBOX_ASR_DEADLINE, BLACKBOX_LLM_DEADLINE, BLACKBOX_TTS_DEADLINE")
			fmt.Println("  BLACKBOX_LLM_MAX_TOKENS, BLACKBOX_CONTEXT_LIMIT, BLACKBOX_DEFAULT_USER")
			fmt.Println("  BLACKBOX_SHM_DIR, BLACKBOX_TRANSPORT_POLL")
			fmt.Println("  BLACKBOX_THERMAL_WARN, BLACKBOX_THERMAL_CRITICAL, BLACKBOX_THERMAL_COOLDOWN")
			fmt.Println("  BLACKBOX_THERMAL_POLL, BLACKBOX_THERMAL_PATH")
			fmt.Println("  BLACKBOX_ARGON2_TIME, BLACKBOX_ARGON2_MEM_KIB, BLACKBOX_ARGON2_PARALLEL")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Blackbox %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}
