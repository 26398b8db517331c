package thumbnail_test

import (
	"context"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/dailyreel/pkg/adapters"
	"github.com/dukex/dailyreel/pkg/adapters/thumbnail"
	"github.com/dukex/dailyreel/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_BuildThumbnail(t *testing.T) {
	dir := t.TempDir()
	builder := thumbnail.NewBuilder(thumbnail.Config{Width: 1280, Height: 720}, slog.Default())

	got, err := builder.BuildThumbnail(context.Background(), "Monsoon arrives early in Kerala", dir)
	require.NoError(t, err)
	assert.Equal(t, models.ThumbnailFile, got.ThumbnailRef)

	f, err := os.Open(filepath.Join(dir, models.ThumbnailFile))
	require.NoError(t, err)

	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 1280, img.Bounds().Dx())
	assert.Equal(t, 720, img.Bounds().Dy())

	r, g, b, _ := img.At(10, 2).RGBA()
	assert.Equal(t, uint32(0xFFFF), r, "accent bar is red")
	assert.Zero(t, g)
	assert.Zero(t, b)

	assert.NoFileExists(t, adapters.PartialPath(dir, models.ThumbnailFile))
}

func TestBuilder_EmptyTitle(t *testing.T) {
	builder := thumbnail.NewBuilder(thumbnail.Config{Width: 1280, Height: 720}, slog.Default())

	_, err := builder.BuildThumbnail(context.Background(), " ", t.TempDir())
	assert.True(t, adapters.HasCode(err, adapters.CodeMalformedInput))
}

func TestWrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		width    int
		maxLines int
		want     []string
	}{
		{"single line", "MARKETS CLOSE HIGHER", 22, 4, []string{"MARKETS CLOSE HIGHER"}},
		{"wraps on words", "MONSOON ARRIVES EARLY IN KERALA", 16, 4, []string{"MONSOON ARRIVES", "EARLY IN KERALA"}},
		{"truncates", "ONE TWO THREE FOUR FIVE SIX", 8, 2, []string{"ONE TWO", "THREE..."}},
		{"empty", "", 22, 4, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, thumbnail.Wrap(tt.text, tt.width, tt.maxLines))
		})
	}
}
