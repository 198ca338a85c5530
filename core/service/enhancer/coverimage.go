package enhancer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/benchscope/benchscope/core/port/out"
	"github.com/benchscope/benchscope/pkg/cache"
)

const (
	imageKeyPrefix = cache.KeyPrefix + "imgkey:"
	imageKeyTTL    = 30 * 24 * time.Hour
	coverImageDPI  = "150"
)

// EnableCoverImages turns on cover-page rendering and upload for enhanced
// papers. keys may be nil to disable the image-key cache.
func (e *Enhancer) EnableCoverImages(uploader out.ImageUploader, keys *cache.RedisCache) {
	e.uploader = uploader
	e.imageKeys = keys
	if e.renderPNG == nil {
		e.renderPNG = renderCoverPNG
	}
}

// coverImageKey returns the platform image key for the paper's first page,
// serving repeats from the 30-day cache. Any failure returns "" so the card
// simply renders without an image.
func (e *Enhancer) coverImageKey(ctx context.Context, id string, pdf []byte) string {
	key := imageKeyPrefix + id
	if e.imageKeys != nil {
		if cached, found, err := e.imageKeys.Get(ctx, key); err == nil && found {
			return cached
		}
	}

	png, err := e.renderPNG(pdf)
	if err != nil {
		e.log.WithStage("enhance").WithError(err).Warn("cover render failed: %s", id)
		return ""
	}

	imageKey, err := e.uploader.UploadImage(ctx, png)
	if err != nil {
		e.log.WithStage("enhance").WithError(err).Warn("cover upload failed: %s", id)
		return ""
	}

	if e.imageKeys != nil {
		if err := e.imageKeys.Set(ctx, key, imageKey, imageKeyTTL); err != nil {
			e.log.WithStage("enhance").WithError(err).Debug("image key cache write failed: %s", id)
		}
	}
	return imageKey
}

// renderCoverPNG rasterizes page 1 of the PDF via pdftoppm. A missing
// poppler toolchain is an expected degrade, not a hard dependency.
func renderCoverPNG(pdf []byte) ([]byte, error) {
	bin, err := exec.LookPath("pdftoppm")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm not installed: %w", err)
	}

	dir, err := os.MkdirTemp("", "benchscope-cover-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "paper.pdf")
	if err := os.WriteFile(pdfPath, pdf, 0o644); err != nil {
		return nil, err
	}

	outBase := filepath.Join(dir, "cover")
	cmd := exec.Command(bin, "-png", "-r", coverImageDPI, "-f", "1", "-l", "1", "-singlefile", pdfPath, outBase)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w (%s)", err, string(output))
	}

	return os.ReadFile(outBase + ".png")
}
