package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/mimic/internal/pipeline"
	"github.com/andresmejia3/mimic/internal/present"
	"github.com/andresmejia3/mimic/internal/server"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/andresmejia3/mimic/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	liveOpts   Options
	liveDevice string
	liveListen string
	liveMirror bool
	liveWidth  int
	liveHeight int
	liveFPS    float64
)

var liveCmd = &cobra.Command{
	Use:         "live",
	Short:       "Animate a photo with your face from a camera and serve the preview over HTTP",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		applyRenderDefaults(cmd.Flags(), &liveOpts)
		applyCameraDefaults(cmd)
		return runLive(cmd.Context(), liveOpts)
	},
}

func init() {
	liveCmd.Flags().StringVarP(&liveOpts.PhotoPath, "photo", "p", "", "Photo to animate at startup (more can be uploaded from the browser)")
	liveCmd.Flags().StringVarP(&liveDevice, "device", "d", "", "Camera device (default from config, /dev/video0)")
	liveCmd.Flags().StringVar(&liveListen, "listen", "", "HTTP listen address (default from config, :8081)")
	liveCmd.Flags().BoolVar(&liveMirror, "mirror", true, "Mirror the camera like a selfie preview")
	liveCmd.Flags().IntVarP(&liveWidth, "width", "W", 0, "Capture width (default from config, 1280)")
	liveCmd.Flags().IntVarP(&liveHeight, "height", "H", 0, "Capture height (default from config, 720)")
	liveCmd.Flags().Float64Var(&liveFPS, "fps", 0, "Capture frame rate (default from config, 30)")
	addRenderFlags(liveCmd.Flags(), &liveOpts)
	addWorkerFlags(liveCmd.Flags(), &liveOpts)

	rootCmd.AddCommand(liveCmd)
}

func applyCameraDefaults(cmd *cobra.Command) {
	if liveDevice == "" {
		liveDevice = Cfg.Camera.Device
	}
	if liveListen == "" {
		liveListen = Cfg.Server.Listen
	}
	if !cmd.Flags().Changed("mirror") {
		liveMirror = Cfg.Camera.Mirror
	}
	if liveWidth == 0 {
		liveWidth = Cfg.Camera.Width
	}
	if liveHeight == 0 {
		liveHeight = Cfg.Camera.Height
	}
	if liveFPS == 0 {
		liveFPS = Cfg.Camera.FPS
	}
}

// livePhotos swaps the animated photo while the render loop keeps running.
type livePhotos struct {
	analyzer *photoAnalyzer
	renderer *warp.Renderer
}

// LoadPhoto analyzes an upload and installs it. A photo without a face
// clears the current one.
func (l *livePhotos) LoadPhoto(ctx context.Context, data []byte) (string, error) {
	fmt.Fprintln(os.Stderr, "🔍 "+present.MsgAnalyzing)
	photo, err := l.analyzer.LoadBytes(ctx, data, "upload")
	if err != nil {
		if errors.Is(err, warp.ErrNoFaceInSource) {
			l.renderer.ClearSource()
			fmt.Fprintln(os.Stderr, "⚠️  "+present.MsgPhotoNoFace)
		}
		return "", err
	}
	l.renderer.SetSource(photo.Source)
	fmt.Fprintf(os.Stderr, "✅ %s (%s)\n", present.MsgPhotoReady, utils.ShortID(photo.ID))
	return photo.ID, nil
}

func (l *livePhotos) ClearPhoto() {
	l.renderer.ClearSource()
	fmt.Fprintln(os.Stderr, "🗑️  "+present.MsgPhotoCleared)
}

func runLive(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateRenderFlags(&opts); err != nil {
		return err
	}
	if liveWidth <= 0 || liveHeight <= 0 || liveFPS <= 0 {
		err := fmt.Errorf("invalid capture format %dx%d@%v", liveWidth, liveHeight, liveFPS)
		utils.ShowError("Configuration Error", err, nil)
		return err
	}
	width, height := liveWidth, liveHeight

	fr, err := newFrameRenderer(opts, width, height)
	if err != nil {
		utils.ShowError("Configuration Error", err, nil)
		return err
	}

	photoCfg, err := workerConfig(worker.ModePhoto, opts.WorkerTimeout)
	if err != nil {
		return err
	}
	photoTracker := &lazyWorker{ctx: ctx, cfg: photoCfg}
	defer photoTracker.Close()
	photos := &livePhotos{
		analyzer: &photoAnalyzer{tracker: photoTracker, db: DB, maxWidth: Cfg.PhotoMaxWidth},
		renderer: fr.renderer,
	}

	var photoID string
	if opts.PhotoPath != "" {
		if err := validateInputFile(opts.PhotoPath, "photo"); err != nil {
			return err
		}
		photo, err := photos.analyzer.Load(ctx, opts.PhotoPath, opts.Refresh)
		if err != nil {
			utils.ShowError("Photo analysis failed", err, nil)
			return err
		}
		fr.renderer.SetSource(photo.Source)
		photoID = photo.ID
	}

	sessionID := uuid.New()
	if DB != nil {
		if sessionID, err = DB.StartRender(ctx, photoID, liveDevice, "live"); err != nil {
			utils.ShowError("Failed to record render session", err, nil)
			return err
		}
	}
	srv := server.New(sessionID, photos)
	srv.UpdateStatus(func(st *server.Status) { st.Photo = photoID })

	trackCfg, err := workerConfig(worker.ModeVideo, opts.WorkerTimeout)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "🚀 Warming up engine...")
	tw, err := worker.NewPythonWorker(ctx, 0, trackCfg)
	if err != nil {
		utils.ShowError("Worker startup failed", err, nil)
		return err
	}
	defer tw.Close()

	camera := utils.NewFFmpegCameraDecoder(ctx, liveDevice, width, height, liveFPS)
	cameraOut, err := camera.StdoutPipe()
	if err != nil {
		utils.ShowError("Failed to create camera pipe", err, nil)
		return err
	}
	if err := camera.Start(); err != nil {
		utils.ShowError("Failed to start camera capture", err, camera)
		return err
	}
	fmt.Fprintln(os.Stderr, "✅ "+present.MsgCameraReady)

	// Only the newest frame is worth rendering; older ones go back to the pool.
	frames := pipeline.NewLatest[[]byte](func(buf []byte) { frameBufferPool.Put(buf) })
	errChan := make(chan error, 3)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer frames.Close()
		if err := captureFrames(cameraOut, frames, width, height, liveMirror); err != nil && ctx.Err() == nil {
			utils.ShowError("Camera capture stopped", err, camera)
			errChan <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(ctx, liveListen); err != nil {
			utils.ShowError("Preview server failed", err, nil)
			errChan <- err
			cancel()
		}
	}()
	fmt.Fprintf(os.Stderr, "🌐 Preview at http://%s/\n", displayAddr(liveListen))

	var stats renderStats
	loopErr := func() error {
		var lastMsg string
		for {
			buf, err := frames.Get(ctx)
			if err != nil {
				if errors.Is(err, pipeline.ErrClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			faces, err := tw.Track(buf, width, height)
			if err != nil {
				utils.ShowError("Python crashed", err, tw.Cmd)
				frameBufferPool.Put(buf)
				return err
			}

			live := &image.RGBA{Pix: buf, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
			out, res, err := fr.render(live, faces)
			if err != nil {
				frameBufferPool.Put(buf)
				if !errors.Is(err, warp.ErrIndexMismatch) {
					return err
				}
				// The photo was analyzed with a different refine setting than the camera tracker.
				fr.renderer.ClearSource()
				srv.UpdateStatus(func(st *server.Status) {
					st.Photo = ""
					st.Message = "Photo landmarks do not match the camera tracker. Re-analyze it with --refresh."
				})
				fmt.Fprintf(os.Stderr, "⚠️  %v\n", err)
				continue
			}
			if err := srv.PublishFrame(out); err != nil {
				utils.Debugf("%v", err)
			}
			frameBufferPool.Put(buf)

			stats.add(res)
			msg := present.StatusMessage(res, len(faces) > 0)
			srv.UpdateStatus(func(st *server.Status) {
				st.Frames = int64(stats.Frames)
				st.Rendered = int64(stats.Rendered)
				st.Dropped = frames.Dropped()
				st.Message = msg
			})
			if msg != lastMsg {
				fmt.Fprintln(os.Stderr, "ℹ️  "+msg)
				lastMsg = msg
			}
		}
	}()

	cancel()
	wg.Wait()
	camera.Wait()

	if DB != nil {
		if err := DB.FinishRender(context.Background(), sessionID, stats.Frames, stats.Rendered, stats.NoFace, stats.Degenerate); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Failed to record render session: %v\n", err)
		}
	}

	select {
	case err := <-errChan:
		return err
	default:
	}
	if loopErr != nil {
		return loopErr
	}
	fmt.Fprintf(os.Stderr, "\n✨ Session %s ended: %d frames, %d animated, %d dropped\n",
		sessionID, stats.Frames, stats.Rendered, frames.Dropped())
	return nil
}

// captureFrames reads raw camera frames into pooled buffers until the stream ends.
func captureFrames(r io.Reader, frames *pipeline.Latest[[]byte], width, height int, mirror bool) error {
	frameSize := width * height * 4
	for {
		buf := frameBufferPool.Get().([]byte)
		if cap(buf) < frameSize {
			buf = make([]byte, frameSize)
		}
		buf = buf[:frameSize]

		if _, err := io.ReadFull(r, buf); err != nil {
			frameBufferPool.Put(buf)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if mirror {
			m := utils.Mirror(&image.RGBA{Pix: buf, Stride: width * 4, Rect: image.Rect(0, 0, width, height)})
			copy(buf, m.Pix)
		}
		if !frames.Put(buf) {
			frameBufferPool.Put(buf)
			return nil
		}
	}
}

// displayAddr turns ":8081" into "localhost:8081" for the console hint.
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
