package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/andresmejia3/mimic/internal/canvas"
	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/pipeline"
	"github.com/andresmejia3/mimic/internal/present"
	"github.com/andresmejia3/mimic/internal/triangulate"
	"github.com/andresmejia3/mimic/internal/types"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/andresmejia3/mimic/internal/worker"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const megabyte = 1024 * 1024

var reenactOpts Options

var reenactCmd = &cobra.Command{
	Use:         "reenact",
	Short:       "Animate a photo with the face from a video and write the result",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		applyRenderDefaults(cmd.Flags(), &reenactOpts)
		return runReenact(cmd.Context(), reenactOpts)
	},
}

func init() {
	reenactCmd.Flags().StringVarP(&reenactOpts.PhotoPath, "photo", "p", "", "Path to the photo to animate")
	reenactCmd.Flags().StringVarP(&reenactOpts.InputPath, "input", "i", "", "Path to the driving video")
	reenactCmd.Flags().StringVarP(&reenactOpts.OutputPath, "output", "o", "", "Path to output video (default: <output_dir>/<input>_reenacted.mp4)")
	reenactCmd.Flags().IntVarP(&reenactOpts.NumEngines, "engines", "e", 1, "Number of parallel landmark workers")
	addRenderFlags(reenactCmd.Flags(), &reenactOpts)
	addWorkerFlags(reenactCmd.Flags(), &reenactOpts)

	reenactCmd.MarkFlagRequired("photo")
	reenactCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(reenactCmd)
}

// addRenderFlags registers the presentation flags shared by reenact and live.
func addRenderFlags(fs *pflag.FlagSet, opts *Options) {
	fs.StringVarP(&opts.Layout, "layout", "l", "", "Output layout: side, overlay, warp (default from config, side)")
	fs.Float64Var(&opts.Opacity, "opacity", -1, "Warped photo opacity for the overlay layout (default from config, 0.85)")
	fs.StringVar(&opts.Interpolation, "interpolation", "", "Resampling kernel: nearest, approx, bilinear, catmullrom (default from config, bilinear)")
	fs.BoolVar(&opts.NoMesh, "no-mesh", false, "Do not draw the landmark mesh over the live frame")
}

// addWorkerFlags registers the tracker flags shared by reenact and live.
func addWorkerFlags(fs *pflag.FlagSet, opts *Options) {
	fs.StringVar(&opts.WorkerTimeout, "worker-timeout", "", "Timeout for a worker to process a single frame (default from config, 30s)")
	fs.BoolVar(&opts.Refresh, "refresh", false, "Re-analyze the photo even if it is cached")
}

// applyRenderDefaults fills unset render flags from the settings file.
func applyRenderDefaults(fs *pflag.FlagSet, opts *Options) {
	if opts.Layout == "" {
		opts.Layout = Cfg.Render.Layout
	}
	if !fs.Changed("opacity") {
		opts.Opacity = Cfg.Render.Opacity
	}
	if opts.Interpolation == "" {
		opts.Interpolation = Cfg.Render.Interpolation
	}
	if !fs.Changed("no-mesh") {
		opts.NoMesh = !Cfg.Render.Mesh
	}
	if opts.WorkerTimeout == "" {
		opts.WorkerTimeout = Cfg.Worker.Timeout
	}
}

// Buffer pool to reduce GC pressure while streaming frames
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

type reenactResult struct {
	Index int
	Data  []byte
	Faces [][]landmark.Landmark
}

// renderStats counts what happened to each frame of a session.
type renderStats struct {
	Frames     int
	Rendered   int
	NoFace     int
	Degenerate int
}

func (s *renderStats) add(res warp.Result) {
	s.Frames++
	switch res.Status {
	case warp.StatusRendered:
		s.Rendered++
	case warp.StatusNoFace:
		s.NoFace++
	}
	s.Degenerate += res.Degenerate
}

// frameRenderer turns one tracked frame into an output frame.
type frameRenderer struct {
	renderer  *warp.Renderer
	presenter *present.Presenter
	surface   *canvas.Surface
	width     int
	height    int

	// meshSrc is the Source meshTris was copied from.
	meshSrc  *warp.Source
	meshTris []triangulate.Triangle
}

func newFrameRenderer(opts Options, width, height int) (*frameRenderer, error) {
	layout, err := present.ParseLayout(opts.Layout)
	if err != nil {
		return nil, err
	}
	interp, err := canvas.ParseInterpolator(opts.Interpolation)
	if err != nil {
		return nil, err
	}
	return &frameRenderer{
		renderer:  warp.NewRenderer(warp.WithInterpolator(interp), warp.WithDebugf(utils.Debugf)),
		presenter: present.New(present.Options{Layout: layout, Opacity: opts.Opacity, Mesh: !opts.NoMesh}),
		surface:   canvas.New(width, height),
		width:     width,
		height:    height,
	}, nil
}

// render warps the current photo onto live and composes the output frame.
func (f *frameRenderer) render(live *image.RGBA, faces [][]landmark.Landmark) (*image.RGBA, warp.Result, error) {
	points, err := warp.DestinationFromFaces(faces, f.width, f.height)
	if err != nil && !errors.Is(err, warp.ErrNoFaceInDestination) {
		return nil, warp.Result{}, err
	}

	res, err := f.renderer.Render(f.surface, points)
	if err != nil {
		return nil, res, err
	}

	frame := present.Frame{Live: live, Warped: f.surface.Image(), Points: points, Result: res}
	if src := f.renderer.Source(); src != nil && points != nil && points.Len() == src.Points().Len() {
		if src != f.meshSrc {
			f.meshSrc, f.meshTris = src, src.Triangles()
		}
		frame.Triangles = f.meshTris
	}
	return f.presenter.Compose(frame), res, nil
}

func runReenact(ctx context.Context, opts Options) error {
	// Create a cancellable context to ensure all child processes (FFmpeg, Python)
	// are killed immediately if this function returns early (e.g. on error).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.OutputPath == "" {
		out, err := defaultOutput(opts.InputPath, "_reenacted.mp4")
		if err != nil {
			utils.ShowError("Failed to prepare output directory", err, nil)
			return err
		}
		opts.OutputPath = out
	}
	if err := validateReenactFlags(&opts); err != nil {
		return err
	}

	fps, err := utils.GetVideoFPS(ctx, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to determine video FPS", err, nil)
		return err
	}
	width, height, err := utils.GetVideoDimensions(ctx, opts.InputPath)
	if err != nil {
		utils.ShowError("Failed to determine video dimensions", err, nil)
		return err
	}
	totalFrames := utils.GetTotalFrames(ctx, opts.InputPath)

	fr, err := newFrameRenderer(opts, width, height)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	photoCfg, err := workerConfig(worker.ModePhoto, opts.WorkerTimeout)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	photoTracker := &lazyWorker{ctx: ctx, cfg: photoCfg}
	an := &photoAnalyzer{tracker: photoTracker, db: DB, maxWidth: Cfg.PhotoMaxWidth}
	fmt.Fprintln(os.Stderr, "🔍 Analyzing face in photo...")
	photo, err := an.Load(ctx, opts.PhotoPath, opts.Refresh)
	photoTracker.Close()
	if err != nil {
		utils.ShowError("Photo analysis failed", err, nil)
		return err
	}
	fr.renderer.SetSource(photo.Source)
	fmt.Fprintf(os.Stderr, "✅ Photo ready: %d landmarks, %d triangles\n", photo.Source.Points().Len(), photo.Source.NumTriangles())

	var sessionID uuid.UUID
	if DB != nil {
		if sessionID, err = DB.StartRender(ctx, photo.ID, opts.InputPath, opts.OutputPath); err != nil {
			utils.ShowError("Failed to record render session", err, nil)
			return err
		}
	}

	// A single engine sees consecutive frames and can track; a pool cannot.
	mode := worker.ModeVideo
	if opts.NumEngines > 1 {
		mode = worker.ModePhoto
	}
	trackCfg, err := workerConfig(mode, opts.WorkerTimeout)
	if err != nil {
		return err
	}

	taskChan := make(chan types.FrameTask, opts.NumEngines)
	resultsChan := make(chan reenactResult, opts.NumEngines*2)
	errChan := make(chan error, opts.NumEngines+2)

	var wg sync.WaitGroup
	readyChan := make(chan bool, opts.NumEngines)

	for i := 0; i < opts.NumEngines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			w, err := worker.NewPythonWorker(ctx, id, trackCfg)
			if err != nil {
				utils.ShowError("Worker startup failed", err, nil)
				select {
				case errChan <- err:
				default:
				}
				return
			}
			defer w.Close()
			readyChan <- true

			for task := range taskChan {
				faces, err := w.Track(task.Data, width, height)
				if err != nil {
					utils.ShowError("Python crashed", err, w.Cmd)
					select {
					case errChan <- err:
					default:
					}
					return
				}
				select {
				case resultsChan <- reenactResult{Index: task.Index, Data: task.Data, Faces: faces}:
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}

	// Wait for workers to be ready
	fmt.Fprintln(os.Stderr, "🚀 Warming up engines...")
	for i := 0; i < opts.NumEngines; i++ {
		select {
		case <-readyChan:
		case err := <-errChan:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	decoder := utils.NewFFmpegRawDecoder(ctx, opts.InputPath)
	decoderOut, err := decoder.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create decoder pipe", err, nil)
		return err
	}
	if err := decoder.Start(); err != nil {
		utils.ShowError("Failed to start decoder", err, decoder)
		return err
	}

	outW, outH := fr.presenter.OutputSize(width, height)
	encoder := utils.NewFFmpegEncoder(ctx, opts.OutputPath, fps, outW, outH)
	encoderIn, err := encoder.StdinPipe()
	if err != nil {
		utils.ShowError("Failed to create encoder pipe", err, nil)
		return err
	}
	if err := encoder.Start(); err != nil {
		utils.ShowError("Failed to start encoder", err, encoder)
		return err
	}

	go func() {
		defer close(taskChan)
		frameSize := width * height * 4
		idx := 0
		for {
			buf := frameBufferPool.Get().([]byte)
			if cap(buf) < frameSize {
				buf = make([]byte, frameSize)
			}
			buf = buf[:frameSize]

			if _, err := io.ReadFull(decoderOut, buf); err != nil {
				// EOF or unexpected error, stop reading
				frameBufferPool.Put(buf)
				return
			}

			select {
			case taskChan <- types.FrameTask{Index: idx, Data: buf}:
				idx++
			case <-ctx.Done():
				return
			}
		}
	}()

	var barTotal int64 = int64(totalFrames)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("Reenacting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	var stats renderStats
	reorder := pipeline.NewReorder[reenactResult](0)
	emit := func(_ int, frame reenactResult) error {
		// Zero-Copy: Wrap the raw bytes in an image.RGBA struct
		live := &image.RGBA{Pix: frame.Data, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
		out, res, err := fr.render(live, frame.Faces)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame.Index, err)
		}
		if _, err := encoderIn.Write(out.Pix); err != nil {
			return err
		}
		// Release buffer back to pool
		frameBufferPool.Put(frame.Data)

		stats.add(res)
		if res.Degenerate > 0 {
			utils.Debugf("frame %d: %d degenerate triangles skipped", frame.Index, res.Degenerate)
		}
		bar.Add(1)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			return err
		case res, ok := <-resultsChan:
			if !ok {
				goto Flush
			}
			if err := reorder.Push(res.Index, res, emit); err != nil {
				utils.ShowError("Render failed", err, nil)
				return err
			}
		}
	}

Flush:
	encoderIn.Close()
	if err := encoder.Wait(); err != nil {
		utils.ShowError("Encoder process failed", err, encoder)
		return err
	}
	if err := decoder.Wait(); err != nil {
		utils.ShowError("Decoder process failed", err, decoder)
		return err
	}
	if n := reorder.Pending(); n > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  %d frames never reached the encoder\n", n)
	}

	if DB != nil {
		if err := DB.FinishRender(context.Background(), sessionID, stats.Frames, stats.Rendered, stats.NoFace, stats.Degenerate); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to record render session: %v\n", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n✨ Wrote %s: %d frames, %d animated, %d without a face\n",
		opts.OutputPath, stats.Frames, stats.Rendered, stats.NoFace)
	return nil
}

// defaultOutput names an output file after input inside the configured output directory.
func defaultOutput(input, suffix string) (string, error) {
	if err := os.MkdirAll(Cfg.OutputDir, 0755); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(Cfg.OutputDir, base+suffix), nil
}

func validateReenactFlags(opts *Options) error {
	if err := validateInputFile(opts.PhotoPath, "photo"); err != nil {
		return err
	}
	if err := validateInputFile(opts.InputPath, "video"); err != nil {
		return err
	}

	// Safety Check: Prevent overwriting input file which causes corruption
	inAbs, _ := filepath.Abs(opts.InputPath)
	outAbs, _ := filepath.Abs(opts.OutputPath)
	photoAbs, _ := filepath.Abs(opts.PhotoPath)
	if inAbs == outAbs || photoAbs == outAbs {
		err := fmt.Errorf("input and output paths must be different to prevent file corruption")
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	if opts.NumEngines < 1 {
		opts.NumEngines = 1
	}
	return validateRenderFlags(opts)
}

// validateRenderFlags checks the presentation flags shared by reenact and live.
func validateRenderFlags(opts *Options) error {
	if _, err := present.ParseLayout(opts.Layout); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if opts.Opacity < 0 || opts.Opacity > 1.0 {
		err := fmt.Errorf("must be between 0.0 and 1.0, got %f", opts.Opacity)
		utils.ShowError("Invalid opacity", err, nil)
		return err
	}
	if _, err := canvas.ParseInterpolator(opts.Interpolation); err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	if _, err := workerConfig(worker.ModeVideo, opts.WorkerTimeout); err != nil {
		utils.ShowError("Invalid worker-timeout format (use '30s', '1m')", err, nil)
		return err
	}
	return nil
}
