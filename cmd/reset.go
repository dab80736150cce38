package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB    bool
	resetFiles bool
	resetPhoto string
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset system state (Database, Rendered Outputs)",
	Long:        "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	Run: func(cmd *cobra.Command, args []string) {
		reader := bufio.NewReader(cmd.InOrStdin())
		ask := func(prompt string) bool { return resetYes || confirm(reader, prompt) }

		if resetPhoto != "" {
			if DB == nil {
				utils.Die("Cannot forget a photo", fmt.Errorf("database unavailable"), nil)
			}
			photo, err := DB.GetPhoto(cmd.Context(), resetPhoto)
			if err != nil {
				utils.Die("Failed to find photo", err, nil)
			}
			if ask(fmt.Sprintf("⚠️  Forget photo %s and its render history?", utils.ShortID(photo.ID))) {
				if err := DB.DeletePhoto(cmd.Context(), photo.ID); err != nil {
					utils.Die("Failed to delete photo", err, nil)
				}
				fmt.Printf("🗑️  Photo %s removed.\n", utils.ShortID(photo.ID))
			}
			return
		}

		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		if resetDB {
			if DB == nil {
				fmt.Fprintln(os.Stderr, "⚠️  Database unavailable, skipping.")
			} else if ask("⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetFiles {
			if ask(fmt.Sprintf("⚠️  Are you sure you want to delete everything in %s?", Cfg.OutputDir)) {
				fmt.Println("🗑️  Clearing Output Files (Videos, Frames)...")
				removeDir(Cfg.OutputDir)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "database", false, "Clear PostgreSQL database")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear generated files in the output directory")
	resetCmd.Flags().StringVar(&resetPhoto, "photo", "", "Forget a single analyzed photo by ID or prefix")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if path == "" || path == "/" || path == "." {
		fmt.Fprintf(os.Stderr, "⚠️  Refusing to remove %q\n", path)
		return
	}
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
