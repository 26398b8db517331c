// Package thumbnail renders the video thumbnail as a PNG.
package thumbnail

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/models"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	margin       = 60
	lineChars    = 22
	maxLines     = 4
	glyphWidth   = 7
	glyphHeight  = 13
	lineSpacing  = 4
	accentHeight = 8
)

var (
	gradientTop    = color.RGBA{R: 0x1A, G: 0x1A, B: 0x2E, A: 0xFF}
	gradientBottom = color.RGBA{R: 0x16, G: 0x21, B: 0x3E, A: 0xFF}
	accentBar      = color.RGBA{R: 0xFF, A: 0xFF}
	separator      = color.RGBA{R: 0xE9, G: 0x45, B: 0x60, A: 0xFF}
	shadow         = color.RGBA{A: 0xFF}
)

type Config struct {
	Width  int
	Height int
}

type Builder struct {
	cfg    Config
	logger *slog.Logger
}

func NewBuilder(cfg Config, logger *slog.Logger) *Builder {
	return &Builder{
		cfg:    cfg,
		logger: logger.With("module", "thumbnail"),
	}
}

func (b *Builder) BuildThumbnail(ctx context.Context, title, dir string) (models.Thumbnail, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Thumbnail{}, adapters.Permanent(adapters.CodeMalformedInput, "thumbnail title is empty", nil)
	}

	img := b.Render(title)

	f, err := os.OpenFile(adapters.PartialPath(dir, models.ThumbnailFile), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return models.Thumbnail{}, adapters.Permanent(adapters.CodeRenderFailed, "failed to create thumbnail file", err)
	}

	err = png.Encode(f, img)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		adapters.Discard(dir, models.ThumbnailFile)

		return models.Thumbnail{}, adapters.Permanent(adapters.CodeRenderFailed, "failed to encode thumbnail", err)
	}

	err = adapters.Commit(dir, models.ThumbnailFile)
	if err != nil {
		return models.Thumbnail{}, adapters.Permanent(adapters.CodeRenderFailed, "failed to store thumbnail", err)
	}

	b.logger.InfoContext(ctx, "Rendered thumbnail", "width", b.cfg.Width, "height", b.cfg.Height)

	return models.Thumbnail{ThumbnailRef: models.ThumbnailFile}, nil
}

// Render draws the title over a vertical gradient with a top accent bar.
func (b *Builder) Render(title string) *image.RGBA {
	w, h := b.cfg.Width, b.cfg.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := range h {
		c := lerp(gradientTop, gradientBottom, float64(y)/float64(max(h-1, 1)))
		for x := range w {
			img.SetRGBA(x, y, c)
		}
	}

	fill(img, image.Rect(0, 0, w, accentHeight), accentBar)

	lines := Wrap(strings.ToUpper(title), lineChars, maxLines)
	text := textLayer(lines)

	scale := min(float64(w-2*margin)/float64(text.Bounds().Dx()), float64(h)*0.6/float64(text.Bounds().Dy()))
	tw := int(float64(text.Bounds().Dx()) * scale)
	th := int(float64(text.Bounds().Dy()) * scale)
	top := (h - th) / 2

	target := image.Rect(margin, top, margin+tw, top+th)
	xdraw.NearestNeighbor.Scale(img, target, text, text.Bounds(), xdraw.Over, nil)

	sepY := min(target.Max.Y+accentHeight*2, h-accentHeight)
	fill(img, image.Rect(margin, sepY, w-margin, sepY+4), separator)

	return img
}

// textLayer draws lines at the native 7x13 glyph size with a one pixel drop shadow.
func textLayer(lines []string) *image.RGBA {
	longest := 1
	for _, l := range lines {
		longest = max(longest, len([]rune(l)))
	}

	width := longest*glyphWidth + 1
	height := len(lines)*(glyphHeight+lineSpacing) + 1
	layer := image.NewRGBA(image.Rect(0, 0, width, height))

	for i, line := range lines {
		baseline := (i+1)*(glyphHeight+lineSpacing) - lineSpacing - 3

		for _, pass := range []struct {
			src    image.Image
			offset int
		}{
			{image.NewUniform(shadow), 1},
			{image.White, 0},
		} {
			d := &font.Drawer{
				Dst:  layer,
				Src:  pass.src,
				Face: basicfont.Face7x13,
				Dot:  fixed.P(pass.offset, baseline+pass.offset),
			}
			d.DrawString(line)
		}
	}

	return layer
}

// Wrap breaks text into at most maxLines lines of up to width characters, ending with "..." when truncated.
func Wrap(text string, width, maxLines int) []string {
	var (
		lines   []string
		current string
	)

	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len([]rune(current))+1+len([]rune(word)) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}

	if current != "" {
		lines = append(lines, current)
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
		lines[maxLines-1] = strings.TrimRight(lines[maxLines-1], ".,;: ") + "..."
	}

	return lines
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}

	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xFF}
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	xdraw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, xdraw.Src)
}
