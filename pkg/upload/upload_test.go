package upload

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newProcessor(t *testing.T, maxBytes int64) (*Processor, string) {
	t.Helper()
	root := t.TempDir()
	p := NewProcessor(NewLocalStore(root, "/uploads"), &config.UploadsConfig{Quality: 82, MaxBytes: maxBytes}, zap.NewNop())
	p.nowFunc = func() time.Time { return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC) }
	return p, root
}

func TestProcessStoresJPEG(t *testing.T) {
	p, root := newProcessor(t, 1<<20)

	res, err := p.Process(context.Background(), bytes.NewReader(pngBytes(t, 40, 30)), "products")
	require.NoError(t, err)

	assert.Regexp(t, `^products/2024/03/1709632800000_[0-9a-f]{6}\.jpg$`, res.Key)
	assert.Equal(t, "/uploads/"+res.Key, res.URL)
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Equal(t, 40, res.Width)
	assert.Equal(t, 30, res.Height)

	stored, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(res.Key)))
	require.NoError(t, err)
	assert.Len(t, stored, res.Size)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Width)
}

func TestObjectKeyLayout(t *testing.T) {
	now := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, strings.HasPrefix(ObjectKey("products", now), "products/2023/12/"))
	avatar := ObjectKey("avatars", now)
	assert.Regexp(t, `^avatars/\d+_[0-9a-f]{6}\.jpg$`, avatar)
}

func TestProcessRejects(t *testing.T) {
	p, _ := newProcessor(t, 1<<20)
	ctx := context.Background()

	_, err := p.Process(ctx, strings.NewReader("not an image"), "misc")
	assert.True(t, apperr.HasCode(err, apperr.CodeUploadFailed))

	_, err = p.Process(ctx, bytes.NewReader(pngBytes(t, 4, 4)), "secrets")
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = p.Process(ctx, strings.NewReader(""), "misc")
	assert.True(t, apperr.HasCode(err, apperr.CodeUploadFailed))

	small, _ := newProcessor(t, 64)
	_, err = small.Process(ctx, bytes.NewReader(pngBytes(t, 50, 50)), "misc")
	assert.True(t, apperr.HasCode(err, apperr.CodeUploadFailed))
}

func TestLocalStoreRefusesEscapingKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir(), "/uploads")
	_, err := s.Put(context.Background(), "../outside.jpg", ContentType, []byte("x"))
	assert.Error(t, err)

	require.NoError(t, s.Check(context.Background()))
	require.NoError(t, s.Delete(context.Background(), "misc/missing.jpg"))
}
