// Package upload normalizes uploaded images and stores them.
package upload

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/config"
	"go.uber.org/zap"
)

const ContentType = "image/jpeg"

// Folders that accept uploads.
var Folders = map[string]bool{
	"products":   true,
	"variants":   true,
	"categories": true,
	"avatars":    true,
	"misc":       true,
}

type Result struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	Size        int    `json:"size"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"contentType"`
}

type Processor struct {
	store    ObjectStore
	quality  int
	maxBytes int64
	logger   *zap.Logger
	nowFunc  func() time.Time
}

func NewProcessor(store ObjectStore, cfg *config.UploadsConfig, logger *zap.Logger) *Processor {
	quality := cfg.Quality
	if quality <= 0 || quality > 100 {
		quality = 82
	}
	return &Processor{
		store:    store,
		quality:  quality,
		maxBytes: cfg.MaxBytes,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

func (p *Processor) Store() ObjectStore {
	return p.store
}

// Process decodes r honoring EXIF orientation, re-encodes it as JPEG and
// stores it under folder.
func (p *Processor) Process(ctx context.Context, r io.Reader, folder string) (*Result, error) {
	if !Folders[folder] {
		return nil, apperr.Validation("unknown upload folder", map[string]string{"folder": "oneof"})
	}

	limited := r
	if p.maxBytes > 0 {
		limited = io.LimitReader(r, p.maxBytes+1)
	}
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeUploadFailed, "could not read upload")
	}
	if p.maxBytes > 0 && int64(len(raw)) > p.maxBytes {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeUploadFailed, "file is too large")
	}
	if len(raw) == 0 {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeUploadFailed, "file is empty")
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		p.logger.Debug("image decode failed", zap.Error(err))
		return nil, apperr.New(apperr.KindValidation, apperr.CodeUploadFailed, "file is not a supported image")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	key := ObjectKey(folder, p.nowFunc())
	url, err := p.store.Put(ctx, key, ContentType, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	bounds := img.Bounds()
	return &Result{
		URL:         url,
		Key:         key,
		Size:        buf.Len(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ContentType: ContentType,
	}, nil
}

// ObjectKey builds {folder}/{yyyy}/{mm}/{ms}_{hex}.jpg for products and
// {folder}/{ms}_{hex}.jpg for the other folders.
func ObjectKey(folder string, now time.Time) string {
	name := fmt.Sprintf("%d_%s.jpg", now.UnixMilli(), randomHex(3))
	if folder == "products" {
		return fmt.Sprintf("%s/%04d/%02d/%s", folder, now.Year(), int(now.Month()), name)
	}
	return folder + "/" + name
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%0*x", n*2, time.Now().UnixNano()&0xffffff)
	}
	return hex.EncodeToString(b)
}
