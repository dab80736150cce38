package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/andresmejia3/mimic/internal/landmark"
	"github.com/andresmejia3/mimic/internal/triangulate"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestFlatten(t *testing.T) {
	tris := []triangulate.Triangle{{I0: 0, I1: 1, I2: 2}, {I0: 2, I1: 3, I2: 0}}
	flat := flatten(tris)
	if !reflect.DeepEqual(flat, []int32{0, 1, 2, 2, 3, 0}) {
		t.Fatalf("flatten = %v", flat)
	}
	back, err := unflatten(flat)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, tris) {
		t.Errorf("unflatten = %v, want %v", back, tris)
	}
	if _, err := unflatten([]int32{1, 2}); err == nil {
		t.Error("expected error for a truncated triangle array")
	}
}

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Explicitly check for Docker availability and fail hard if missing
	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mimic_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	photo := Photo{
		ID:     "abc123def4567890",
		Path:   "/tmp/face.jpg",
		Width:  900,
		Height: 1200,
		Landmarks: []landmark.Landmark{
			{X: 0.1, Y: 0.1}, {X: 0.9, Y: 0.1, Z: -0.05}, {X: 0.5, Y: 0.9},
		},
		Triangles: []triangulate.Triangle{{I0: 0, I1: 1, I2: 2}},
	}
	if err := s.SavePhoto(ctx, photo); err != nil {
		t.Fatalf("SavePhoto failed: %v", err)
	}

	// Full ID and unique prefix both resolve
	for _, id := range []string{photo.ID, "abc123"} {
		got, err := s.GetPhoto(ctx, id)
		if err != nil {
			t.Fatalf("GetPhoto(%q) failed: %v", id, err)
		}
		if got.ID != photo.ID || got.Width != 900 || len(got.Landmarks) != 3 {
			t.Errorf("GetPhoto(%q) = %+v", id, got)
		}
		if got.Landmarks[1].Z != -0.05 {
			t.Errorf("landmark depth lost: %+v", got.Landmarks[1])
		}
		if !reflect.DeepEqual(got.Triangles, photo.Triangles) {
			t.Errorf("triangles = %v, want %v", got.Triangles, photo.Triangles)
		}
	}

	if _, err := s.GetPhoto(ctx, "ffff"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Ambiguous prefix
	twin := photo
	twin.ID = "abc123ffff"
	if err := s.SavePhoto(ctx, twin); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPhoto(ctx, "abc"); !errors.Is(err, ErrAmbiguous) {
		t.Errorf("expected ErrAmbiguous, got %v", err)
	}

	// Labels survive re-analysis
	if err := s.RenamePhoto(ctx, photo.ID, "Grandpa"); err != nil {
		t.Fatalf("RenamePhoto failed: %v", err)
	}
	if err := s.SavePhoto(ctx, photo); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetPhoto(ctx, photo.ID)
	if got.Name != "Grandpa" {
		t.Errorf("name after re-analysis = %q, want Grandpa", got.Name)
	}
	if err := s.RenamePhoto(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound renaming a missing photo, got %v", err)
	}

	// Render sessions
	sessionID, err := s.StartRender(ctx, photo.ID, "/tmp/in.mp4", "/tmp/out.mp4")
	if err != nil {
		t.Fatalf("StartRender failed: %v", err)
	}
	if err := s.FinishRender(ctx, sessionID, 100, 90, 10, 3); err != nil {
		t.Fatalf("FinishRender failed: %v", err)
	}
	renders, err := s.ListRenders(ctx, 10)
	if err != nil {
		t.Fatalf("ListRenders failed: %v", err)
	}
	if len(renders) != 1 || renders[0].ID != sessionID || renders[0].Rendered != 90 || renders[0].FinishedAt == nil {
		t.Errorf("unexpected sessions: %+v", renders)
	}

	photos, err := s.ListPhotos(ctx)
	if err != nil {
		t.Fatalf("ListPhotos failed: %v", err)
	}
	if len(photos) != 2 {
		t.Fatalf("Expected 2 photos, got %d", len(photos))
	}
	for _, p := range photos {
		if p.Points != 3 || p.Triangles != 1 {
			t.Errorf("summary counts wrong: %+v", p)
		}
	}

	if err := s.DeletePhoto(ctx, photo.ID); err != nil {
		t.Fatalf("DeletePhoto failed: %v", err)
	}
	if renders, _ := s.ListRenders(ctx, 10); len(renders) != 0 {
		t.Errorf("render history not removed with its photo: %+v", renders)
	}

	// Live sessions may start without a photo
	liveID, err := s.StartRender(ctx, "", "/dev/video0", "live")
	if err != nil {
		t.Fatalf("StartRender without a photo failed: %v", err)
	}
	renders, err = s.ListRenders(ctx, 10)
	if err != nil || len(renders) != 1 || renders[0].ID != liveID || renders[0].PhotoID != "" || renders[0].FinishedAt != nil {
		t.Errorf("unexpected live session listing: %+v, %v", renders, err)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
