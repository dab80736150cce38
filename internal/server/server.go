// Package server exposes a live session over HTTP: an MJPEG preview stream,
// photo upload and removal, and a JSON status endpoint.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"sync"
	"time"

	"github.com/andresmejia3/mimic/internal/present"
	"github.com/andresmejia3/mimic/internal/types"
	"github.com/andresmejia3/mimic/internal/utils"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// ErrInvalidImage marks uploads that could not be decoded.
var ErrInvalidImage = errors.New("invalid image")

const (
	boundary       = "mimicframe"
	maxUploadBytes = 16 << 20
	jpegQuality    = 80
)

// PhotoLoader installs and removes the photo being animated.
type PhotoLoader interface {
	// LoadPhoto analyzes an uploaded image and returns its photo ID.
	LoadPhoto(ctx context.Context, data []byte) (string, error)
	ClearPhoto()
}

// Status is the body of GET /status.
type Status struct {
	Session  uuid.UUID `json:"session"`
	Message  string    `json:"message"`
	Photo    string    `json:"photo,omitempty"`
	Frames   int64     `json:"frames"`
	Rendered int64     `json:"rendered"`
	Dropped  int64     `json:"dropped"`
}

// Server serves one live session. Frames are published by the render loop
// and fanned out to every connected stream.
type Server struct {
	loader PhotoLoader
	ctx    context.Context

	mu     sync.Mutex
	frame  []byte
	seq    uint64
	next   chan struct{}
	status Status

	done     chan struct{}
	doneOnce sync.Once
	srv      *fasthttp.Server
}

// New creates a Server for the given session.
func New(session uuid.UUID, loader PhotoLoader) *Server {
	return &Server{
		loader: loader,
		ctx:    context.Background(),
		next:   make(chan struct{}),
		status: Status{Session: session, Message: present.MsgCameraReady},
		done:   make(chan struct{}),
	}
}

// PublishFrame encodes img as JPEG and hands it to every stream.
func (s *Server) PublishFrame(img image.Image) error {
	var buf bytes.Buffer
	if err := utils.EncodeJPEG(&buf, img, jpegQuality); err != nil {
		return fmt.Errorf("failed to encode preview frame: %w", err)
	}
	s.mu.Lock()
	s.frame = buf.Bytes()
	s.seq++
	close(s.next)
	s.next = make(chan struct{})
	s.mu.Unlock()
	return nil
}

// UpdateStatus applies fn to the status under the server lock.
func (s *Server) UpdateStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

// Status returns a copy of the current status.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Handler routes requests.
func (s *Server) Handler(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	switch {
	case path == "/" && ctx.IsGet():
		ctx.SetContentType("text/html; charset=utf-8")
		ctx.WriteString(indexHTML)
	case path == "/stream" && ctx.IsGet():
		s.handleStream(ctx)
	case path == "/status" && ctx.IsGet():
		writeJSON(ctx, fasthttp.StatusOK, s.Status())
	case path == "/photo" && ctx.IsPost():
		s.handleUpload(ctx)
	case path == "/photo" && ctx.IsDelete():
		s.loader.ClearPhoto()
		s.UpdateStatus(func(st *Status) {
			st.Photo = ""
			st.Message = present.MsgPhotoCleared
		})
		writeJSON(ctx, fasthttp.StatusOK, s.Status())
	case path == "/photo" || path == "/stream" || path == "/status":
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
	default:
		ctx.Error("not found", fasthttp.StatusNotFound)
	}
}

func (s *Server) handleUpload(ctx *fasthttp.RequestCtx) {
	data, err := uploadBody(ctx)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusBadRequest, types.ErrorResult{Error: err.Error()})
		return
	}

	s.UpdateStatus(func(st *Status) { st.Message = present.MsgAnalyzing })
	id, err := s.loader.LoadPhoto(s.ctx, data)
	if err != nil {
		code, msg := fasthttp.StatusInternalServerError, err.Error()
		switch {
		case errors.Is(err, warp.ErrNoFaceInSource):
			code, msg = fasthttp.StatusUnprocessableEntity, present.MsgPhotoNoFace
		case errors.Is(err, ErrInvalidImage):
			code, msg = fasthttp.StatusBadRequest, present.MsgPhotoBad
		}
		s.UpdateStatus(func(st *Status) {
			st.Photo = ""
			st.Message = msg
		})
		writeJSON(ctx, code, types.ErrorResult{Error: msg})
		return
	}

	s.UpdateStatus(func(st *Status) {
		st.Photo = id
		st.Message = present.MsgPhotoReady
	})
	writeJSON(ctx, fasthttp.StatusOK, s.Status())
}

// uploadBody accepts either a multipart form with a "photo" file or the raw image bytes.
func uploadBody(ctx *fasthttp.RequestCtx) ([]byte, error) {
	if bytes.HasPrefix(ctx.Request.Header.ContentType(), []byte("multipart/form-data")) {
		fh, err := ctx.FormFile("photo")
		if err != nil {
			return nil, fmt.Errorf("missing photo field: %w", err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil, errors.New("empty upload")
	}
	return append([]byte(nil), body...), nil
}

func (s *Server) handleStream(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("multipart/x-mixed-replace; boundary=" + boundary)
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.SetBodyStreamWriter(s.writeStream)
}

// writeStream writes frames as they are published until the client goes away
// or the server closes.
func (s *Server) writeStream(w *bufio.Writer) {
	var last uint64
	for {
		s.mu.Lock()
		frame, seq, next := s.frame, s.seq, s.next
		s.mu.Unlock()

		if seq == last {
			select {
			case <-next:
				continue
			case <-s.done:
				return
			}
		}
		last = seq

		fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame))
		w.Write(frame)
		w.WriteString("\r\n")
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, code int, v any) {
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		ctx.Error(err.Error(), fasthttp.StatusInternalServerError)
	}
}

// Serve handles connections from ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.ctx = ctx
	s.srv = &fasthttp.Server{
		Handler:            s.Handler,
		Name:               "mimic",
		MaxRequestBodySize: maxUploadBytes,
		ReadTimeout:        30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
		s.Close()
		return s.srv.Shutdown()
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Close ends every open stream.
func (s *Server) Close() {
	s.doneOnce.Do(func() { close(s.done) })
}

const indexHTML = `<!doctype html>
<html>
<head><title>mimic</title></head>
<body style="background:#111;color:#e7eef7;font-family:system-ui">
<img src="/stream" style="max-width:100%">
<form id="f"><input type="file" name="photo" accept="image/*"> <button type="button" id="clear">Clear photo</button></form>
<p id="status"></p>
<script>
const status = document.getElementById("status");
async function refresh() {
  const r = await fetch("/status");
  status.textContent = (await r.json()).message;
}
document.querySelector("input[type=file]").addEventListener("change", async (e) => {
  const body = new FormData();
  body.append("photo", e.target.files[0]);
  const r = await fetch("/photo", { method: "POST", body });
  const j = await r.json();
  status.textContent = j.message || j.error;
});
document.getElementById("clear").addEventListener("click", async () => {
  await fetch("/photo", { method: "DELETE" });
  refresh();
});
setInterval(refresh, 1000);
</script>
</body>
</html>
`
