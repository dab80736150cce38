package cmd

import (
	"context"
	"fmt"

	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:         "label <photo_id> <name>",
	Short:       "Assign a name to an analyzed photo (a unique ID prefix is enough)",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		runLabel(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}

func runLabel(ctx context.Context, id, name string) {
	// 1. Database is initialized in Root PersistentPreRun
	// 2. Resolve a short ID to the full one
	photo, err := DB.GetPhoto(ctx, id)
	if err != nil {
		utils.Die("Failed to find photo", err, nil)
	}

	// 3. Rename the photo
	if err := DB.RenamePhoto(ctx, photo.ID, name); err != nil {
		utils.Die("Failed to label photo", err, nil)
	}

	fmt.Printf("✅ Photo %s labeled as '%s'\n", utils.ShortID(photo.ID), name)
}
