package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/focuswatch/internal/window"
	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the title of the focused window once",
	Long: `Query the focused window and print its title. Nothing is printed to stdout
when no window has focus or the window has no title.`,
	RunE: runCurrent,
}

func init() {
	rootCmd.AddCommand(currentCmd)
}

func runCurrent(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	title, err := window.NewTitleResolver(backend, cfg.MaxTitleLength).Resolve()
	if err != nil {
		return err
	}
	if title == "" {
		fmt.Fprintln(os.Stderr, "(no focused window title)")
		return nil
	}

	fmt.Println(title)
	return nil
}
