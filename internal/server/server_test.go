package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/andresmejia3/mimic/internal/present"
	"github.com/andresmejia3/mimic/internal/warp"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type fakeLoader struct {
	err     error
	loaded  [][]byte
	cleared int
}

func (f *fakeLoader) LoadPhoto(ctx context.Context, data []byte) (string, error) {
	f.loaded = append(f.loaded, data)
	if f.err != nil {
		return "", f.err
	}
	return "abc123", nil
}

func (f *fakeLoader) ClearPhoto() { f.cleared++ }

func do(s *Server, method, uri, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	s.Handler(&ctx)
	return &ctx
}

func decodeStatus(t *testing.T, ctx *fasthttp.RequestCtx) Status {
	t.Helper()
	var st Status
	if err := json.Unmarshal(ctx.Response.Body(), &st); err != nil {
		t.Fatalf("invalid status body %q: %v", ctx.Response.Body(), err)
	}
	return st
}

func TestStatus(t *testing.T) {
	session := uuid.New()
	s := New(session, &fakeLoader{})
	s.UpdateStatus(func(st *Status) { st.Frames = 12 })

	ctx := do(s, fasthttp.MethodGet, "/status", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("status code = %d", ctx.Response.StatusCode())
	}
	st := decodeStatus(t, ctx)
	if st.Session != session || st.Frames != 12 || st.Message != present.MsgCameraReady {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestPhotoUploadAndClear(t *testing.T) {
	loader := &fakeLoader{}
	s := New(uuid.New(), loader)

	ctx := do(s, fasthttp.MethodPost, "/photo", "fake image bytes")
	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("upload status = %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	if len(loader.loaded) != 1 || string(loader.loaded[0]) != "fake image bytes" {
		t.Errorf("loader received %q", loader.loaded)
	}
	if st := decodeStatus(t, ctx); st.Photo != "abc123" || st.Message != present.MsgPhotoReady {
		t.Errorf("status after upload: %+v", st)
	}

	ctx = do(s, fasthttp.MethodDelete, "/photo", "")
	if ctx.Response.StatusCode() != fasthttp.StatusOK || loader.cleared != 1 {
		t.Fatalf("clear failed: code %d, cleared %d", ctx.Response.StatusCode(), loader.cleared)
	}
	if st := s.Status(); st.Photo != "" || st.Message != present.MsgPhotoCleared {
		t.Errorf("status after clear: %+v", st)
	}
}

func TestPhotoUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		body     string
		wantCode int
		wantMsg  string
	}{
		{"No face", fmt.Errorf("analyze: %w", warp.ErrNoFaceInSource), "img", fasthttp.StatusUnprocessableEntity, present.MsgPhotoNoFace},
		{"Undecodable", fmt.Errorf("%w: unknown format", ErrInvalidImage), "img", fasthttp.StatusBadRequest, present.MsgPhotoBad},
		{"Worker failure", fmt.Errorf("python worker error: boom"), "img", fasthttp.StatusInternalServerError, "python worker error: boom"},
		{"Empty body", nil, "", fasthttp.StatusBadRequest, "empty upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(uuid.New(), &fakeLoader{err: tt.err})
			ctx := do(s, fasthttp.MethodPost, "/photo", tt.body)
			if ctx.Response.StatusCode() != tt.wantCode {
				t.Errorf("code = %d, want %d", ctx.Response.StatusCode(), tt.wantCode)
			}
			if !strings.Contains(string(ctx.Response.Body()), tt.wantMsg) {
				t.Errorf("body %q missing %q", ctx.Response.Body(), tt.wantMsg)
			}
		})
	}
}

func TestRouting(t *testing.T) {
	s := New(uuid.New(), &fakeLoader{})
	if code := do(s, fasthttp.MethodGet, "/nope", "").Response.StatusCode(); code != fasthttp.StatusNotFound {
		t.Errorf("unknown path code = %d", code)
	}
	if code := do(s, fasthttp.MethodPut, "/photo", "").Response.StatusCode(); code != fasthttp.StatusMethodNotAllowed {
		t.Errorf("PUT /photo code = %d", code)
	}
	ctx := do(s, fasthttp.MethodGet, "/", "")
	if !strings.Contains(string(ctx.Response.Body()), `src="/stream"`) {
		t.Error("index page does not embed the stream")
	}
}

func TestWriteStream(t *testing.T) {
	s := New(uuid.New(), &fakeLoader{})
	if err := s.PublishFrame(image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writeStream(bufio.NewWriter(pw))
		pw.Close()
	}()

	r := bufio.NewReader(pr)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if line != "--"+boundary+"\r\n" {
		t.Errorf("first line = %q", line)
	}
	if line, _ = r.ReadString('\n'); line != "Content-Type: image/jpeg\r\n" {
		t.Errorf("part header = %q", line)
	}

	// Keep draining so the writer never blocks, then stop the server.
	go io.Copy(io.Discard, r)
	s.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after Close")
	}
}
