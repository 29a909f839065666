package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// ErrResizeFailed is the simulated image resize failure.
var ErrResizeFailed = errors.New("image resize failed")

// ResizeImagePayload is the payload of a resize_image job.
type ResizeImagePayload struct {
	ImageURL string `json:"image_url"`
	Size     string `json:"size"`
}

// Validate checks that the image URL is absolute and a size is given.
func (p ResizeImagePayload) Validate() error {
	if p.ImageURL == "" {
		return errors.New("resize_image: image_url is required")
	}
	u, err := url.Parse(p.ImageURL)
	if err != nil {
		return fmt.Errorf("resize_image: invalid image_url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("resize_image: image_url %q must be absolute", p.ImageURL)
	}
	if p.Size == "" {
		return errors.New("resize_image: size is required")
	}
	return nil
}

func (s *simulator) resizeImage(ctx context.Context, p ResizeImagePayload) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.logger.Info("resizing image",
		slog.String("image_url", p.ImageURL),
		slog.String("size", p.Size),
	)
	if err := s.work(ctx, s.cfg.ResizeImage, ErrResizeFailed); err != nil {
		return err
	}
	s.logger.Info("image resized", slog.String("image_url", p.ImageURL))
	return nil
}
