package stage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/otiai10/copy"

	"github.com/nao1215/clsprep/internal/labels"
)

// SyntheticSourceDir is the directory under the raw root that holds the
// generated 16-bit source images.
const SyntheticSourceDir = "source"

// syntheticMaxValue is the brightest generated pixel, the 12-bit range of
// typical full-field digital mammograms.
const syntheticMaxValue = 4095

// ErrImageNotFound is returned when a label row has no matching image.
var ErrImageNotFound = errors.New("image for label row not found")

// SyntheticProcessor prepares the built-in synthetic dataset. Stage 1 renders
// deterministic 16-bit phantom mammograms, two views per patient, and Stage 2
// rescales them to 8 bits. The ROI engine is not used.
type SyntheticProcessor struct {
	cases  int
	width  int
	height int
	logger *slog.Logger
}

// SyntheticOption configures a SyntheticProcessor.
type SyntheticOption func(*SyntheticProcessor)

// WithSyntheticCases sets the number of patients. Values below one are ignored.
func WithSyntheticCases(n int) SyntheticOption {
	return func(p *SyntheticProcessor) {
		if n > 0 {
			p.cases = n
		}
	}
}

// WithSyntheticSize sets the image size. Non-positive values are ignored.
func WithSyntheticSize(width, height int) SyntheticOption {
	return func(p *SyntheticProcessor) {
		if width > 0 && height > 0 {
			p.width = width
			p.height = height
		}
	}
}

// WithSyntheticLogger sets the logger.
func WithSyntheticLogger(logger *slog.Logger) SyntheticOption {
	return func(p *SyntheticProcessor) {
		p.logger = logger
	}
}

// NewSyntheticProcessor creates a SyntheticProcessor with 16 patients of
// 64x80 pixel images unless configured otherwise.
func NewSyntheticProcessor(opts ...SyntheticOption) *SyntheticProcessor {
	p := &SyntheticProcessor{
		cases:  16,
		width:  64,
		height: 80,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// syntheticCase describes one generated image.
type syntheticCase struct {
	patientID  string
	imageID    string
	laterality string
	cancer     bool
}

func (p *SyntheticProcessor) catalog() []syntheticCase {
	out := make([]syntheticCase, 0, p.cases*2)
	for i := range p.cases {
		// Every fourth patient has a lesion in the left breast.
		for j, lat := range []string{"L", "R"} {
			out = append(out, syntheticCase{
				patientID:  fmt.Sprintf("syn%04d", i),
				imageID:    strconv.Itoa(100000 + i*2 + j),
				laterality: lat,
				cancer:     i%4 == 0 && lat == "L",
			})
		}
	}
	return out
}

// Stage1 implements Processor. Missing source images are generated under
// <RawRoot>/source. Without ForceCopy the source directory itself is
// returned; with it the tree is copied into the requested directory.
func (p *SyntheticProcessor) Stage1(ctx context.Context, req Stage1Request) (string, error) {
	src := filepath.Join(req.RawRoot, SyntheticSourceDir)
	cases := p.catalog()

	table := &labels.Table{
		Header: []string{
			labels.ColumnSiteID,
			labels.ColumnPatientID,
			labels.ColumnImageID,
			labels.ColumnLaterality,
			labels.ColumnView,
			labels.ColumnCancer,
		},
		Rows: make([][]string, 0, len(cases)),
	}

	generated := 0
	for _, c := range cases {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		imgPath := filepath.Join(src, c.patientID, c.imageID+".png")
		if _, err := os.Stat(imgPath); errors.Is(err, fs.ErrNotExist) {
			if err := writePNG(imgPath, p.render(c)); err != nil {
				return "", err
			}
			generated++
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", imgPath, err)
		}

		cancer := "0"
		if c.cancer {
			cancer = "1"
		}
		table.Rows = append(table.Rows, []string{"0", c.patientID, c.imageID, c.laterality, "CC", cancer})
	}

	p.logger.Debug("synthetic source ready", "dir", src, "images", len(cases), "generated", generated)

	if err := labels.Write(req.LabelPath, table); err != nil {
		return "", err
	}

	if !req.ForceCopy {
		return src, nil
	}
	if err := copy.Copy(src, req.ImagesDir); err != nil {
		return "", fmt.Errorf("failed to copy synthetic images: %w", err)
	}
	return req.ImagesDir, nil
}

// render draws a phantom breast: a half ellipse against the chest wall with a
// brightness falloff, and a bright round lesion for cancer cases.
func (p *SyntheticProcessor) render(c syntheticCase) *image.Gray16 {
	w, h := p.width, p.height
	img := image.NewGray16(image.Rect(0, 0, w, h))

	cy := float64(h) / 2
	rx, ry := float64(w)*0.8, float64(h)*0.45
	seed := 0
	for _, r := range c.imageID {
		seed = seed*31 + int(r)
	}
	lx, ly := float64(w)*0.35, cy+float64(seed%7-3)*float64(h)/20

	for y := range h {
		for x := range w {
			// Distance from the chest wall, which is on the left for L images.
			dx := float64(x)
			if c.laterality == "R" {
				dx = float64(w - 1 - x)
			}
			dy := float64(y) - cy
			e := (dx*dx)/(rx*rx) + (dy*dy)/(ry*ry)
			if e > 1 {
				continue
			}
			v := float64(syntheticMaxValue) * (0.35 + 0.4*(1-e))
			if c.cancer {
				ddx, ddy := dx-lx, float64(y)-ly
				if ddx*ddx+ddy*ddy < float64(w*w)/100 {
					v = syntheticMaxValue
				}
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return img
}

// Stage2 implements Processor. Label rows are split into req.Chunks static
// chunks and converted on req.Jobs workers. Output files are named
// <patient_id>@<image_id>.png.
func (p *SyntheticProcessor) Stage2(ctx context.Context, req Stage2Request) error {
	p.logger.Debug("synthetic images carry no ROI; engine unused", "engine", req.EnginePath)

	table, err := labels.Read(req.LabelPath)
	if err != nil {
		return err
	}
	patientIDs, err := table.Values(labels.ColumnPatientID)
	if err != nil {
		return err
	}
	imageIDs, err := table.Values(labels.ColumnImageID)
	if err != nil {
		return err
	}

	index, err := indexImages(req.ImagesDir)
	if err != nil {
		return err
	}

	rows := make([]int, len(table.Rows))
	for i := range rows {
		rows[i] = i
	}
	chunks := Partition(rows, req.Chunks)

	pool := NewChunkPool(WithConcurrency(req.Jobs), WithPoolLogger(p.logger))
	return pool.Run(ctx, len(chunks), func(ctx context.Context, ci int) error {
		for _, r := range chunks[ci] {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			src, ok := index[imageIDs[r]]
			if !ok {
				return fmt.Errorf("%w: image_id %s", ErrImageNotFound, imageIDs[r])
			}
			dst := filepath.Join(req.OutputDir, patientIDs[r]+"@"+imageIDs[r]+".png")
			if err := convertTo8Bit(src, dst); err != nil {
				return err
			}
		}
		return nil
	})
}

// indexImages maps image ids, the file names without extension, to paths.
func indexImages(dir string) (map[string]string, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.png")
	if err != nil {
		return nil, fmt.Errorf("failed to list images in %s: %w", dir, err)
	}
	index := make(map[string]string, len(matches))
	for _, m := range matches {
		id := strings.TrimSuffix(path.Base(m), ".png")
		index[id] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return index, nil
}

// convertTo8Bit min-max scales the luminance of src into an 8-bit image at dst.
func convertTo8Bit(src, dst string) error {
	f, err := os.Open(src) //nolint:gosec // Path comes from the Stage 1 image directory
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	img, err := png.Decode(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", src, err)
	}

	b := img.Bounds()
	lo, hi := uint16(0xffff), uint16(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
			lo, hi = min(lo, v), max(hi, v)
		}
	}

	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if hi > lo {
		span := uint32(hi - lo)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				v := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
				out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: uint8(uint32(v-lo) * 255 / span)})
			}
		}
	}

	return writePNG(dst, out)
}

func writePNG(dst string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}
	f, err := os.Create(dst) //nolint:gosec // Output path is built from the run layout
	if err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode %s: %w", dst, err)
	}
	return f.Close()
}
