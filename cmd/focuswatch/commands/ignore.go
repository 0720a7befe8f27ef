package commands

import (
	"fmt"

	"github.com/bryanchriswhite/focuswatch/internal/config"
	"github.com/spf13/cobra"
)

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Manage title ignore patterns",
	Long: `Add or remove regex patterns for titles that should never be printed.

Patterns are matched against the full window title. Ignored titles are still
tracked, so the next different title is reported normally.`,
}

var ignoreAddCmd = &cobra.Command{
	Use:   "add PATTERN",
	Short: "Add a title ignore pattern",
	Long:  `Add a regex pattern that matches window titles to hide.`,
	Example: `  # Hide any window with "Slack" in the title
  focuswatch ignore add ".*Slack.*"

  # Hide private browser windows
  focuswatch ignore add ".*Private Browsing.*"

  # Hide a specific document
  focuswatch ignore add ".*secrets\\.txt.*"`,
	Args: cobra.ExactArgs(1),
	RunE: runIgnoreAdd,
}

var ignoreRemoveCmd = &cobra.Command{
	Use:   "remove PATTERN",
	Short: "Remove a title ignore pattern",
	Long:  `Remove a regex pattern from the ignore list.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runIgnoreRemove,
}

var ignoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List title ignore patterns",
	Long:  `Display all configured title ignore patterns.`,
	RunE:  runIgnoreList,
}

func init() {
	rootCmd.AddCommand(ignoreCmd)
	ignoreCmd.AddCommand(ignoreAddCmd)
	ignoreCmd.AddCommand(ignoreRemoveCmd)
	ignoreCmd.AddCommand(ignoreListCmd)
}

func runIgnoreAdd(cmd *cobra.Command, args []string) error {
	pattern := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := configMgr.AddIgnorePattern(pattern); err != nil {
		return fmt.Errorf("failed to add ignore pattern: %w", err)
	}

	fmt.Printf("Added ignore pattern: %s\n", pattern)
	return nil
}

func runIgnoreRemove(cmd *cobra.Command, args []string) error {
	pattern := args[0]

	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := configMgr.RemoveIgnorePattern(pattern); err != nil {
		return fmt.Errorf("failed to remove ignore pattern: %w", err)
	}

	fmt.Printf("Removed ignore pattern: %s\n", pattern)
	return nil
}

func runIgnoreList(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()

	fmt.Println("Title Ignore Patterns:")
	if len(cfg.Output.IgnorePatterns) == 0 {
		fmt.Println("  (none)")
	} else {
		for i, pattern := range cfg.Output.IgnorePatterns {
			fmt.Printf("  %d. %s\n", i+1, pattern)
		}
	}

	return nil
}
