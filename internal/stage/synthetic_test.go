package stage

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nao1215/clsprep/internal/labels"
)

func newSyntheticRequest(t *testing.T) Stage1Request {
	t.Helper()
	tmp := t.TempDir()
	return Stage1Request{
		RawRoot:   filepath.Join(tmp, "raw", "synthetic"),
		ImagesDir: filepath.Join(tmp, "raw", "synthetic", "stage1_images"),
		LabelPath: filepath.Join(tmp, "clean", "classification", "synthetic", "cleaned_label.csv"),
	}
}

func TestSyntheticStage1(t *testing.T) {
	t.Parallel()

	t.Run("returns source directory without force copy", func(t *testing.T) {
		t.Parallel()

		req := newSyntheticRequest(t)
		p := NewSyntheticProcessor(WithSyntheticCases(3), WithSyntheticSize(16, 20))

		dir, err := p.Stage1(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := filepath.Join(req.RawRoot, SyntheticSourceDir)
		if dir != want {
			t.Errorf("expected %q, got %q", want, dir)
		}
		if _, err := os.Stat(req.ImagesDir); !os.IsNotExist(err) {
			t.Errorf("expected requested directory to stay absent, stat err: %v", err)
		}

		table, err := labels.Read(req.LabelPath)
		if err != nil {
			t.Fatalf("expected label table: %v", err)
		}
		if len(table.Rows) != 6 {
			t.Errorf("expected 6 rows, got %d", len(table.Rows))
		}
		cancer, err := table.Values(labels.ColumnCancer)
		if err != nil {
			t.Fatal(err)
		}
		if cancer[0] != "1" || cancer[1] != "0" {
			t.Errorf("expected first left image to be positive, got %v", cancer)
		}
	})

	t.Run("labels the left image of every fourth patient positive", func(t *testing.T) {
		t.Parallel()

		req := newSyntheticRequest(t)
		p := NewSyntheticProcessor(WithSyntheticCases(8), WithSyntheticSize(8, 8))
		if _, err := p.Stage1(context.Background(), req); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		table, err := labels.Read(req.LabelPath)
		if err != nil {
			t.Fatal(err)
		}
		patients, err := table.Values(labels.ColumnPatientID)
		if err != nil {
			t.Fatal(err)
		}
		lats, err := table.Values(labels.ColumnLaterality)
		if err != nil {
			t.Fatal(err)
		}
		cancer, err := table.Values(labels.ColumnCancer)
		if err != nil {
			t.Fatal(err)
		}

		var positives []string
		for i := range cancer {
			if cancer[i] == "1" {
				positives = append(positives, patients[i]+"/"+lats[i])
			}
		}
		want := []string{"syn0000/L", "syn0004/L"}
		if !slices.Equal(positives, want) {
			t.Errorf("expected positives %v, got %v", want, positives)
		}
	})

	t.Run("copies into requested directory with force copy", func(t *testing.T) {
		t.Parallel()

		req := newSyntheticRequest(t)
		req.ForceCopy = true
		p := NewSyntheticProcessor(WithSyntheticCases(2), WithSyntheticSize(16, 20))

		dir, err := p.Stage1(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir != req.ImagesDir {
			t.Errorf("expected %q, got %q", req.ImagesDir, dir)
		}
		index, err := indexImages(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(index) != 4 {
			t.Errorf("expected 4 copied images, got %d", len(index))
		}
	})

	t.Run("keeps existing source images", func(t *testing.T) {
		t.Parallel()

		req := newSyntheticRequest(t)
		p := NewSyntheticProcessor(WithSyntheticCases(1), WithSyntheticSize(8, 8))

		dir, err := p.Stage1(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		img := filepath.Join(dir, "syn0000", "100000.png")
		if err := os.WriteFile(img, []byte("sentinel"), 0600); err != nil {
			t.Fatal(err)
		}

		if _, err := p.Stage1(context.Background(), req); err != nil {
			t.Fatal(err)
		}
		data, _ := os.ReadFile(img)
		if string(data) != "sentinel" {
			t.Error("expected existing source image to be kept")
		}
	})
}

func TestSyntheticStage2(t *testing.T) {
	t.Parallel()

	t.Run("writes one 8-bit image per label row", func(t *testing.T) {
		t.Parallel()

		req := newSyntheticRequest(t)
		p := NewSyntheticProcessor(WithSyntheticCases(5), WithSyntheticSize(16, 20))

		dir, err := p.Stage1(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}

		out := filepath.Join(t.TempDir(), "cleaned_images")
		if err := os.MkdirAll(out, 0750); err != nil {
			t.Fatal(err)
		}
		err = p.Stage2(context.Background(), Stage2Request{
			EnginePath: "/unused.pth",
			ImagesDir:  dir,
			LabelPath:  req.LabelPath,
			OutputDir:  out,
			Jobs:       3,
			Chunks:     3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		entries, err := os.ReadDir(out)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 10 {
			t.Fatalf("expected 10 images, got %d", len(entries))
		}

		f, err := os.Open(filepath.Join(out, "syn0000@100000.png"))
		if err != nil {
			t.Fatalf("expected named output image: %v", err)
		}
		defer f.Close()
		img, err := png.Decode(f)
		if err != nil {
			t.Fatal(err)
		}
		gray, ok := img.(*image.Gray)
		if !ok {
			t.Fatalf("expected 8-bit grayscale, got %T", img)
		}
		if gray.Bounds().Dx() != 16 || gray.Bounds().Dy() != 20 {
			t.Errorf("unexpected size %v", gray.Bounds())
		}
		var lo, hi uint8 = 255, 0
		for _, v := range gray.Pix {
			lo, hi = min(lo, v), max(hi, v)
		}
		if lo != 0 || hi != 255 {
			t.Errorf("expected full 8-bit range, got [%d, %d]", lo, hi)
		}
	})

	t.Run("missing image fails", func(t *testing.T) {
		t.Parallel()

		req := newSyntheticRequest(t)
		p := NewSyntheticProcessor(WithSyntheticCases(1), WithSyntheticSize(8, 8))
		dir, err := p.Stage1(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(filepath.Join(dir, "syn0000", "100001.png")); err != nil {
			t.Fatal(err)
		}

		err = p.Stage2(context.Background(), Stage2Request{
			ImagesDir: dir,
			LabelPath: req.LabelPath,
			OutputDir: t.TempDir(),
			Jobs:      1,
			Chunks:    1,
		})
		if !errors.Is(err, ErrImageNotFound) {
			t.Errorf("expected ErrImageNotFound, got %v", err)
		}
	})

	t.Run("missing label table fails", func(t *testing.T) {
		t.Parallel()

		p := NewSyntheticProcessor()
		err := p.Stage2(context.Background(), Stage2Request{
			ImagesDir: t.TempDir(),
			LabelPath: filepath.Join(t.TempDir(), "missing.csv"),
			OutputDir: t.TempDir(),
			Jobs:      1,
			Chunks:    1,
		})
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected ErrNotExist, got %v", err)
		}
	})
}
