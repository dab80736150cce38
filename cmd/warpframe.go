package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/present"
	"github.com/andresmejia3/mimic/internal/types"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	warpOpts       Options
	warpSourceJSON string
	warpDestJSON   string
	warpFrame      string
	warpWidth      int
	warpHeight     int
)

var warpCmd = &cobra.Command{
	Use:   "warp",
	Short: "Warp a photo onto one set of landmarks read from JSON files",
	Long: `Renders a single frame without a camera, tracker or database.
Landmark files hold either a tracker response ({"faces": [[{"x":..,"y":..,"z":..}, ...]]})
or a bare array of normalized landmarks. Use "-o -" to write the PNG to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		applyRenderDefaults(cmd.Flags(), &warpOpts)
		if !cmd.Flags().Changed("layout") {
			warpOpts.Layout = string(present.LayoutWarp)
		}
		return runWarp(cmd.OutOrStdout(), warpOpts)
	},
}

func init() {
	warpCmd.Flags().StringVarP(&warpOpts.PhotoPath, "photo", "p", "", "Photo to warp")
	warpCmd.Flags().StringVarP(&warpSourceJSON, "source", "s", "", "Landmarks of the photo (JSON)")
	warpCmd.Flags().StringVarP(&warpDestJSON, "dest", "d", "", "Target landmarks (JSON)")
	warpCmd.Flags().StringVarP(&warpFrame, "frame", "f", "", "Optional frame image the target landmarks were taken from")
	warpCmd.Flags().IntVarP(&warpWidth, "width", "W", 0, "Output width (default: frame or photo width)")
	warpCmd.Flags().IntVarP(&warpHeight, "height", "H", 0, "Output height (default: frame or photo height)")
	warpCmd.Flags().StringVarP(&warpOpts.OutputPath, "output", "o", "", "Output image, or - for stdout (default: <output_dir>/<photo>_warped.png)")
	addRenderFlags(warpCmd.Flags(), &warpOpts)

	warpCmd.MarkFlagRequired("photo")
	warpCmd.MarkFlagRequired("source")
	warpCmd.MarkFlagRequired("dest")
	rootCmd.AddCommand(warpCmd)
}

// readLandmarks loads the first face from a landmark JSON file.
func readLandmarks(path string) ([]landmark.Landmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var res types.LandmarkResult
	if err := json.Unmarshal(data, &res); err == nil {
		if res.Error != "" {
			return nil, fmt.Errorf("%s: tracker error: %s", path, res.Error)
		}
		if len(res.Faces) == 0 || len(res.Faces[0]) == 0 {
			return nil, fmt.Errorf("%s: %w", path, landmark.ErrEmpty)
		}
		return res.Faces[0], nil
	}

	var raw []landmark.Landmark
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: not a landmark file: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", path, landmark.ErrEmpty)
	}
	return raw, nil
}

func runWarp(stdout io.Writer, opts Options) error {
	if opts.OutputPath == "" {
		out, err := defaultOutput(opts.PhotoPath, "_warped.png")
		if err != nil {
			utils.ShowError("Failed to prepare output directory", err, nil)
			return err
		}
		opts.OutputPath = out
	}
	if err := validateWarpFlags(&opts, stdout); err != nil {
		return err
	}

	photo, _, err := utils.LoadPhoto(opts.PhotoPath, Cfg.PhotoMaxWidth)
	if err != nil {
		utils.ShowError("Failed to load photo", err, nil)
		return err
	}
	srcMarks, err := readLandmarks(warpSourceJSON)
	if err != nil {
		utils.ShowError("Failed to read source landmarks", err, nil)
		return err
	}
	dstMarks, err := readLandmarks(warpDestJSON)
	if err != nil {
		utils.ShowError("Failed to read target landmarks", err, nil)
		return err
	}

	var frame *image.RGBA
	if warpFrame != "" {
		img, _, err := utils.LoadPhoto(warpFrame, 0)
		if err != nil {
			utils.ShowError("Failed to load frame", err, nil)
			return err
		}
		frame = toRGBA(img)
	}

	width, height := warpWidth, warpHeight
	switch {
	case frame != nil:
		width, height = frame.Rect.Dx(), frame.Rect.Dy()
	case width == 0 || height == 0:
		width, height = photo.Bounds().Dx(), photo.Bounds().Dy()
	}
	if frame == nil {
		frame = image.NewRGBA(image.Rect(0, 0, width, height))
	}

	src, err := warp.SourceFromFaces(photo, [][]landmark.Landmark{srcMarks})
	if err != nil {
		utils.ShowError("Failed to prepare photo", err, nil)
		return err
	}

	fr, err := newFrameRenderer(opts, width, height)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	fr.renderer.SetSource(src)

	out, res, err := fr.render(frame, [][]landmark.Landmark{dstMarks})
	if err != nil {
		utils.ShowError("Warp failed", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "✅ Drew %d of %d triangles (%d degenerate)\n", res.Drawn, src.NumTriangles(), res.Degenerate)

	if opts.OutputPath == "-" {
		return utils.EncodePNG(stdout, out)
	}
	if err := utils.SaveImage(out, opts.OutputPath); err != nil {
		utils.ShowError("Failed to write output", err, nil)
		return err
	}
	fmt.Fprintf(os.Stderr, "💾 Saved %s\n", opts.OutputPath)
	return nil
}

func validateWarpFlags(opts *Options, stdout io.Writer) error {
	for _, in := range []struct{ path, kind string }{
		{opts.PhotoPath, "photo"},
		{warpSourceJSON, "landmark"},
		{warpDestJSON, "landmark"},
	} {
		if err := validateInputFile(in.path, in.kind); err != nil {
			return err
		}
	}
	if warpFrame != "" {
		if err := validateInputFile(warpFrame, "frame"); err != nil {
			return err
		}
	}

	if opts.OutputPath == "-" {
		// Refuse to dump binary PNG data onto an interactive terminal
		if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			err := errors.New("stdout is a terminal; redirect it or pass -o <file>")
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
	} else {
		outAbs, _ := filepath.Abs(opts.OutputPath)
		photoAbs, _ := filepath.Abs(opts.PhotoPath)
		if outAbs == photoAbs {
			err := fmt.Errorf("input and output paths must be different to prevent file corruption")
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
	}

	if warpWidth < 0 || warpHeight < 0 {
		err := fmt.Errorf("output size must not be negative, got %dx%d", warpWidth, warpHeight)
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	return validateRenderFlags(opts)
}
