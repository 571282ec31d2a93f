package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Upload is the outcome of storing one chat attachment.
type Upload struct {
	URL     string
	IsImage bool
}

// FileStorage stores chat attachments and hands back a public URL.
type FileStorage interface {
	Upload(ctx context.Context, r io.Reader, folder, fileName string) (*Upload, error)
	Delete(ctx context.Context, fileURL string) error
}

type cloudinaryStorage struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryStorage reads CLOUDINARY_URL from the environment.
func NewCloudinaryStorage() (FileStorage, error) {
	cld, err := cloudinary.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary client: %w", err)
	}

	cld.Config.URL.Secure = true

	if cloudName := os.Getenv("CLOUDINARY_CLOUD_NAME"); cloudName != "" {
		cld.Config.Cloud.CloudName = cloudName
	}

	return &cloudinaryStorage{cld: cld}, nil
}

// IsImageFile reports whether the file name carries an image extension.
func IsImageFile(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".gif", ".webp":
		return true
	}
	return false
}

func (s *cloudinaryStorage) Upload(ctx context.Context, r io.Reader, folder, fileName string) (*Upload, error) {
	if s == nil || s.cld == nil {
		return nil, fmt.Errorf("cloudinary storage is not initialized")
	}

	params := uploader.UploadParams{
		Folder:         folder,
		UseFilename:    api.Bool(true),
		UniqueFilename: api.Bool(true),
		PublicID:       fmt.Sprintf("%d-%s", time.Now().UnixNano(), strings.TrimSuffix(fileName, filepath.Ext(fileName))),
		Overwrite:      api.Bool(false),
	}

	isImage := IsImageFile(fileName)
	if isImage {
		params.Format = "webp"
		params.Transformation = "q_auto"
	} else {
		params.ResourceType = "raw"
	}

	resp, err := s.cld.Upload.Upload(ctx, r, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upload attachment to cloudinary: %w", err)
	}

	if resp.SecureURL == "" {
		return nil, fmt.Errorf("cloudinary upload succeeded but secure URL is empty")
	}

	return &Upload{URL: resp.SecureURL, IsImage: isImage}, nil
}

func (s *cloudinaryStorage) Delete(ctx context.Context, fileURL string) error {
	if s == nil || s.cld == nil {
		return fmt.Errorf("cloudinary storage is not initialized")
	}

	publicID := PublicIDFromURL(fileURL)
	if publicID == "" {
		return fmt.Errorf("could not extract public ID from URL: %s", fileURL)
	}

	params := uploader.DestroyParams{
		PublicID:   publicID,
		Invalidate: api.Bool(true),
	}
	if !IsImageFile(fileURL) {
		params.ResourceType = "raw"
	}

	resp, err := s.cld.Upload.Destroy(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to delete attachment from cloudinary: %w", err)
	}

	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy api returned result: %s", resp.Result)
	}

	return nil
}

// PublicIDFromURL maps a delivery URL back to its public id.
// https://res.cloudinary.com/demo/image/upload/v123/chat/x.webp -> chat/x
func PublicIDFromURL(fileURL string) string {
	u, err := url.Parse(fileURL)
	if err != nil {
		return ""
	}

	parts := strings.Split(u.Path, "/")
	uploadIndex := -1
	for i, p := range parts {
		if p == "upload" {
			uploadIndex = i
			break
		}
	}

	if uploadIndex == -1 || uploadIndex+1 >= len(parts) {
		return ""
	}

	rest := parts[uploadIndex+1:]
	if len(rest) > 1 && isVersionSegment(rest[0]) {
		rest = rest[1:]
	}

	joined := strings.Join(rest, "/")
	return strings.TrimSuffix(joined, filepath.Ext(joined))
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
