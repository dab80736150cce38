package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/spf13/cobra"
)

var listRenders int

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List analyzed photos and recent render sessions",
	Annotations: map[string]string{dbAnnotation: dbRequired},
	Run: func(cmd *cobra.Command, args []string) {
		runList(cmd.Context())
	},
}

func init() {
	listCmd.Flags().IntVarP(&listRenders, "renders", "r", 10, "Number of recent render sessions to show (0 to hide)")
	rootCmd.AddCommand(listCmd)
}

func runList(ctx context.Context) {
	photos, err := DB.ListPhotos(ctx)
	if err != nil {
		utils.Die("Failed to list photos", err, nil)
	}

	if len(photos) == 0 {
		fmt.Println("No photos found in database.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSIZE\tLANDMARKS\tTRIANGLES\tANALYZED\tPATH")
		fmt.Fprintln(w, "--\t----\t----\t---------\t---------\t--------\t----")

		for _, p := range photos {
			fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%d\t%s\t%s\n", utils.ShortID(p.ID), p.Name, p.Width, p.Height,
				p.Points, p.Triangles, p.AnalyzedAt.Local().Format("2006-01-02 15:04"), p.Path)
		}
		w.Flush()
	}

	if listRenders <= 0 {
		return
	}
	renders, err := DB.ListRenders(ctx, listRenders)
	if err != nil {
		utils.Die("Failed to list render sessions", err, nil)
	}
	if len(renders) == 0 {
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SESSION\tPHOTO\tINPUT\tOUTPUT\tFRAMES\tANIMATED\tNO FACE\tSTARTED\tSTATUS")
	fmt.Fprintln(w, "-------\t-----\t-----\t------\t------\t--------\t-------\t-------\t------")
	for _, r := range renders {
		status := "running"
		if r.FinishedAt != nil {
			status = fmt.Sprintf("done in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
		}
		photo := utils.ShortID(r.PhotoID)
		if photo == "" {
			photo = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n", r.ID.String()[:8], photo, r.Input, r.Output,
			r.Frames, r.Rendered, r.NoFace, r.StartedAt.Local().Format("2006-01-02 15:04"), status)
	}
	w.Flush()
}
