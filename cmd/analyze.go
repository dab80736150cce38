package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/andresmejia3/mimic/internal/triangulate"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/andresmejia3/mimic/internal/worker"
	"github.com/spf13/cobra"
)

var (
	analyzeRefresh bool
	analyzeTimeout string
)

var analyzeCmd = &cobra.Command{
	Use:         "analyze <photo>",
	Short:       "Detect landmarks in a photo and cache its triangulation",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{dbAnnotation: dbRequired},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runAnalyze(cmd.Context(), args[0])
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "Re-run landmark detection even if the photo is cached")
	analyzeCmd.Flags().StringVar(&analyzeTimeout, "worker-timeout", "", "Timeout for the landmark worker (default from config, 30s)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(ctx context.Context, path string) error {
	if err := validateInputFile(path, "photo"); err != nil {
		return err
	}

	cfg, err := workerConfig(worker.ModePhoto, analyzeTimeout)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	tr := &lazyWorker{ctx: ctx, cfg: cfg}
	defer tr.Close()

	an := &photoAnalyzer{tracker: tr, db: DB, maxWidth: Cfg.PhotoMaxWidth}
	fmt.Fprintln(os.Stderr, "🔍 Analyzing face in photo...")
	photo, err := an.Load(ctx, path, analyzeRefresh)
	if err != nil {
		utils.ShowError("Photo analysis failed", err, nil)
		return err
	}

	src := photo.Source
	if err := triangulate.CheckCoverage(src.Triangles(), src.Points().Points(), 1e-6); err != nil {
		// Not fatal: the warp draws whatever triangles exist.
		fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
	}

	origin := "analyzed"
	if photo.Cached {
		origin = "cached"
	}
	fmt.Fprintf(os.Stderr, "✅ Photo %s (%s): %dx%d, %d landmarks, %d triangles\n",
		utils.ShortID(photo.ID), origin, src.Width(), src.Height(), src.Points().Len(), src.NumTriangles())
	fmt.Println(photo.ID)
	return nil
}

// validateInputFile checks that path exists and is a regular file.
func validateInputFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			utils.ShowError(fmt.Sprintf("Input %s does not exist", kind), err, nil)
			return err
		}
		utils.ShowError(fmt.Sprintf("Unable to access input %s", kind), err, nil)
		return err
	}
	if info.IsDir() {
		err := fmt.Errorf("is a directory")
		utils.ShowError(fmt.Sprintf("Input path is a directory, expected a %s file", kind), err, nil)
		return err
	}
	return nil
}
