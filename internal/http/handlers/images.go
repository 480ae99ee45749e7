package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/imagegen"
	"studio/internal/middleware"
)

const maxUploadBytes = 10 << 20

type imageGenerateRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio"`
	Quantity    int    `json:"quantity"`
	Style       string `json:"style"`
	ImageURL    string `json:"image_url"`
	// ImageBase64 is raw base64 or a data URL.
	ImageBase64 string `json:"image_base64"`
	ImageMIME   string `json:"image_mime"`
	SkipRefine  bool   `json:"skip_refine"`
}

type generateResponse struct {
	*imagegen.Result
	ImageIDs []string `json:"image_ids,omitempty"`
}

// readGenerateRequest accepts a JSON body or a multipart form with an
// "image" file part.
func (a *App) readGenerateRequest(w http.ResponseWriter, r *http.Request) (imagegen.GenerateRequest, error) {
	var in imageGenerateRequest
	var source *imagegen.SourceImage

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+maxJSONBody)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return imagegen.GenerateRequest{}, fmt.Errorf("%w: invalid form: %v", domain.ErrInvalidInput, err)
		}
		in.Prompt = r.FormValue("prompt")
		in.AspectRatio = r.FormValue("aspect_ratio")
		in.Quantity, _ = strconv.Atoi(r.FormValue("quantity"))
		in.Style = r.FormValue("style")
		in.ImageURL = r.FormValue("image_url")
		in.SkipRefine, _ = strconv.ParseBool(r.FormValue("skip_refine"))
		file, header, err := r.FormFile("image")
		switch {
		case err == nil:
			defer file.Close()
			data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
			if err != nil {
				return imagegen.GenerateRequest{}, fmt.Errorf("%w: read image: %v", domain.ErrInvalidInput, err)
			}
			if len(data) > maxUploadBytes {
				return imagegen.GenerateRequest{}, fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidInput, maxUploadBytes)
			}
			mime := header.Header.Get("Content-Type")
			if mime == "" || mime == "application/octet-stream" {
				mime = http.DetectContentType(data)
			}
			source = &imagegen.SourceImage{Data: data, MIMEType: mime}
		case !errors.Is(err, http.ErrMissingFile):
			return imagegen.GenerateRequest{}, fmt.Errorf("%w: image part: %v", domain.ErrInvalidInput, err)
		}
	} else {
		if err := a.decode(w, r, &in); err != nil {
			return imagegen.GenerateRequest{}, err
		}
		if in.ImageBase64 != "" {
			data, mime, err := decodeImageBase64(in.ImageBase64, in.ImageMIME)
			if err != nil {
				return imagegen.GenerateRequest{}, err
			}
			source = &imagegen.SourceImage{Data: data, MIMEType: mime}
		}
	}
	if source == nil && strings.TrimSpace(in.ImageURL) != "" {
		source = &imagegen.SourceImage{URL: strings.TrimSpace(in.ImageURL)}
	}
	return imagegen.GenerateRequest{
		Prompt:      in.Prompt,
		Image:       source,
		AspectRatio: in.AspectRatio,
		Quantity:    in.Quantity,
		Style:       in.Style,
		Locale:      middleware.LocaleFromContext(r.Context()),
		SkipRefine:  in.SkipRefine,
	}, nil
}

func decodeImageBase64(raw, mime string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		comma := strings.IndexByte(raw, ',')
		if comma < 0 || !strings.HasSuffix(raw[:comma], ";base64") {
			return nil, "", fmt.Errorf("%w: malformed data url", domain.ErrInvalidInput)
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(raw[:comma], "data:"), ";base64")
		raw = raw[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidInput)
	}
	if len(data) > maxUploadBytes {
		return nil, "", fmt.Errorf("%w: image larger than %d bytes", domain.ErrInvalidInput, maxUploadBytes)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

// generate consumes quota, runs pipeline and persists the output.
func (a *App) generate(ctx context.Context, userID string, pipeline *imagegen.Pipeline, usage domain.UsageEventType, req imagegen.GenerateRequest) (*imagegen.Result, []domain.GeneratedImage, error) {
	if pipeline == nil {
		return nil, nil, fmt.Errorf("%w: generator not configured", domain.ErrProviderFailure)
	}
	if _, err := domain.NormalizePrompt(req.Prompt); err != nil {
		return nil, nil, err
	}
	if a.Profiles != nil {
		if _, err := a.Profiles.ConsumeQuota(ctx, userID, domain.ClampQuantity(req.Quantity)); err != nil {
			return nil, nil, err
		}
	}
	start := time.Now()
	result, err := pipeline.Generate(ctx, req)
	a.recordUsage(ctx, domain.UsageEvent{
		UserID:   userID,
		Type:     usage,
		Success:  err == nil && !result.Fallback,
		Fallback: err == nil && result.Fallback,
		Latency:  time.Since(start),
	})
	if err != nil {
		return nil, nil, err
	}
	if a.Persister == nil {
		return result, nil, nil
	}
	rows, err := a.Persister.Persist(ctx, imagegen.PersistInput{UserID: userID, Prompt: req.Prompt, Result: result})
	if err != nil {
		return nil, nil, err
	}
	return result, rows, nil
}

func imageIDs(rows []domain.GeneratedImage) []string {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

// ImagesGenerate runs the refine-then-generate pipeline synchronously.
func (a *App) ImagesGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	req, err := a.readGenerateRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	result, rows, err := a.generate(r.Context(), userID, a.Pipeline, domain.UsageImageGenerate, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{Result: result, ImageIDs: imageIDs(rows)})
}

// ImagesGenerateStream runs the pipeline and streams the first image's bytes.
func (a *App) ImagesGenerateStream(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	req, err := a.readGenerateRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	req.Quantity = 1
	result, rows, err := a.generate(r.Context(), userID, a.Pipeline, domain.UsageImageGenerate, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("X-Image-Provider", result.Provider)
	w.Header().Set("X-Image-Fallback", strconv.FormatBool(result.Fallback))
	if len(rows) > 0 {
		w.Header().Set("X-Image-ID", rows[0].ID)
		if rows[0].StorageKey != "" {
			a.serveStored(w, r, rows[0].StorageKey, rows[0].MIMEType, "")
			return
		}
	}
	a.proxy(w, r, result.Images[0].URL)
}

type refineRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
	ImageURL    string `json:"image_url"`
	ImageBase64 string `json:"image_base64"`
	ImageMIME   string `json:"image_mime"`
}

// ImagesRefine runs only the vision refinement step.
func (a *App) ImagesRefine(w http.ResponseWriter, r *http.Request) {
	if a.Pipeline == nil {
		a.fail(w, r, fmt.Errorf("%w: refiner not configured", domain.ErrProviderFailure))
		return
	}
	var in refineRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	var img *imagegen.SourceImage
	switch {
	case in.ImageBase64 != "":
		data, mime, err := decodeImageBase64(in.ImageBase64, in.ImageMIME)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		img = &imagegen.SourceImage{Data: data, MIMEType: mime}
	case strings.TrimSpace(in.ImageURL) != "":
		img = &imagegen.SourceImage{URL: strings.TrimSpace(in.ImageURL)}
	}
	start := time.Now()
	refined, err := a.Pipeline.Refine(r.Context(), in.Prompt, in.Style, in.AspectRatio, img)
	if !errors.Is(err, domain.ErrInvalidPrompt) {
		a.recordUsage(r.Context(), domain.UsageEvent{UserID: a.currentUserID(r), Type: domain.UsageImageRefine, Success: err == nil, Latency: time.Since(start)})
	}
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"prompt": refined.Prompt, "provider": refined.Provider})
}

// ImagesGemini generates with Gemini native image output and stores the bytes.
func (a *App) ImagesGemini(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	req, err := a.readGenerateRequest(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	result, rows, err := a.generate(r.Context(), userID, a.Gemini, domain.UsageGeminiImage, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, generateResponse{Result: result, ImageIDs: imageIDs(rows)})
}

// ImagesProxy streams an allowlisted image through the API.
func (a *App) ImagesProxy(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "url is required")
		return
	}
	a.proxy(w, r, target)
}

func (a *App) proxy(w http.ResponseWriter, r *http.Request, target string) {
	if a.Fetcher == nil {
		a.fail(w, r, fmt.Errorf("%w: proxy not configured", domain.ErrProviderFailure))
		return
	}
	n, err := a.Fetcher.Stream(r.Context(), target, w)
	if err == nil {
		return
	}
	if w.Header().Get("Content-Type") == "" {
		a.fail(w, r, err)
		return
	}
	// Headers are gone; the client sees a truncated body.
	a.Logger.Warn().Err(err).Str("url", target).Int64("bytes", n).Msg("image stream interrupted")
}

func (a *App) serveStored(w http.ResponseWriter, r *http.Request, key, mime, filename string) {
	if a.Store == nil {
		a.fail(w, r, storageUnavailable)
		return
	}
	rc, size, err := a.Store.Open(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	defer rc.Close()
	if mime == "" {
		mime = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		a.Logger.Warn().Err(err).Str("key", key).Msg("serve stored file")
	}
}

var storageUnavailable = errors.New("file store not configured")
