package imagegen

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/storage"
)

// Persister stores generated images in the file store and records their
// generated_images rows. Hosted results are mirrored so they outlive the
// provider's expiring URLs; fallback photos are recorded by URL only.
type Persister struct {
	store   *storage.FileStore
	images  domain.ImageRepository
	fetcher *Fetcher
	logger  zerolog.Logger
}

// NewPersister builds a Persister. fetcher may be nil, in which case hosted
// results are recorded by URL without mirroring.
func NewPersister(store *storage.FileStore, images domain.ImageRepository, fetcher *Fetcher, logger zerolog.Logger) *Persister {
	return &Persister{
		store:   store,
		images:  images,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "persister").Logger(),
	}
}

type PersistInput struct {
	UserID    string
	RequestID string
	Prompt    string
	Result    *Result
}

// Persist writes every image of in.Result and rewrites their URLs to the
// stored copies. Inline data is released once written.
func (p *Persister) Persist(ctx context.Context, in PersistInput) ([]domain.GeneratedImage, error) {
	if in.Result == nil {
		return nil, nil
	}
	folder := in.RequestID
	if folder == "" {
		folder = "direct"
	}
	rows := make([]domain.GeneratedImage, 0, len(in.Result.Images))
	for i := range in.Result.Images {
		img := &in.Result.Images[i]
		row := domain.GeneratedImage{
			UserID:        in.UserID,
			RequestID:     in.RequestID,
			Prompt:        in.Prompt,
			RefinedPrompt: in.Result.RefinedPrompt,
			Provider:      img.Provider,
			SourceURL:     img.URL,
			MIMEType:      img.MIMEType,
			Width:         img.Width,
			Height:        img.Height,
			AspectRatio:   in.Result.AspectRatio,
			Fallback:      in.Result.Fallback,
		}
		if row.MIMEType == "" {
			row.MIMEType = "image/jpeg"
		}

		data := img.Data
		if len(data) == 0 && !in.Result.Fallback && img.URL != "" && p.fetcher != nil {
			fetched, mime, err := p.fetcher.Fetch(ctx, img.URL)
			if err != nil {
				p.logger.Warn().Err(err).Str("request_id", in.RequestID).Int("index", i).Msg("mirror generated image failed, keeping provider url")
			} else {
				data = fetched
				if mime != "" && mime != "application/octet-stream" {
					row.MIMEType = mime
				}
			}
		}

		if len(data) > 0 {
			if p.store == nil {
				return rows, fmt.Errorf("persist image %d: no file store configured", i+1)
			}
			key := fmt.Sprintf("%s/%s/%d-%s%s", in.UserID, folder, i, uuid.NewString()[:8], storage.ExtensionFor(row.MIMEType))
			key, err := p.store.Write(ctx, key, data)
			if err != nil {
				return rows, fmt.Errorf("persist image %d: %w", i+1, err)
			}
			row.StorageKey = key
			row.Bytes = int64(len(data))
			img.URL = p.store.URL(key)
			img.Data = nil
			if row.SourceURL == "" {
				row.SourceURL = img.URL
			}
		}

		props, _ := json.Marshal(map[string]any{"index": i, "url": img.URL})
		row.Properties = props
		if p.images != nil {
			if err := p.images.Save(ctx, &row); err != nil {
				return rows, fmt.Errorf("record image %d: %w", i+1, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// URL returns the public URL of a stored row, or its source URL when the
// image was never written to the file store.
func (p *Persister) URL(row domain.GeneratedImage) string {
	if row.StorageKey != "" && p.store != nil {
		return p.store.URL(row.StorageKey)
	}
	return row.SourceURL
}
