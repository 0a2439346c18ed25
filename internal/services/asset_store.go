package services

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
)

// AssetStore keeps captured meter photos on the local filesystem, organized
// by Year/Month of the billing period. Captures are compressed before they
// are persisted: decoded (HEIC included), orientation-corrected, bounded to a
// maximum dimension and re-encoded as JPEG.
type AssetStore struct {
	basePath         string
	maxDimension     int
	jpegQuality      int
	maxFileSizeBytes int64
}

// NewAssetStore creates an AssetStore rooted at basePath.
func NewAssetStore(basePath string, maxDimension, jpegQuality int, maxFileSizeMB int64) (*AssetStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("asset base path cannot be empty")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, err
	}

	if maxDimension <= 0 {
		maxDimension = 1600
	}
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 80
	}
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 25
	}

	return &AssetStore{
		basePath:         absPath,
		maxDimension:     maxDimension,
		jpegQuality:      jpegQuality,
		maxFileSizeBytes: maxFileSizeMB * 1024 * 1024,
	}, nil
}

// SaveCapture compresses and persists a captured photo for a reading and
// returns the image record pending upload. The capture timestamp comes from
// EXIF when present, otherwise the current time.
func (s *AssetStore) SaveCapture(reading *models.Reading, data []byte, originalFilename string) (*models.ReadingImage, error) {
	if int64(len(data)) > s.maxFileSizeBytes {
		return nil, &models.ValidationError{Message: "captured image exceeds maximum allowed size"}
	}

	img, err := decodeCapture(data, originalFilename)
	if err != nil {
		return nil, &models.ValidationError{Message: fmt.Sprintf("cannot decode captured image: %v", err)}
	}

	meta := ExtractCaptureMetadata(data)
	img = applyOrientation(img, meta.Orientation)

	// Bound the larger dimension, never upscale
	bounds := img.Bounds()
	if bounds.Dx() > s.maxDimension || bounds.Dy() > s.maxDimension {
		img = imaging.Fit(img, s.maxDimension, s.maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode capture: %w", err)
	}

	capturedAt := time.Now().UTC()
	if meta.DateTaken != nil {
		capturedAt = *meta.DateTaken
	}

	relativeFolder := filepath.Join(
		fmt.Sprintf("%04d", reading.Period.Year),
		fmt.Sprintf("%02d", reading.Period.Month),
	)
	if err := os.MkdirAll(filepath.Join(s.basePath, relativeFolder), 0755); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s_%d.jpg", reading.LocalID, time.Now().UnixNano())
	relativePath := filepath.Join(relativeFolder, filename)

	fullPath, err := s.FullPath(relativePath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
		return nil, err
	}

	storedPath := strings.ReplaceAll(relativePath, string(os.PathSeparator), "/")
	return models.NewReadingImage(reading, storedPath, int64(buf.Len()), "image/jpeg", capturedAt), nil
}

// ReadFile returns the stored bytes of a capture for upload.
func (s *AssetStore) ReadFile(storedPath string) ([]byte, error) {
	fullPath, err := s.FullPath(storedPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(fullPath)
}

// Exists checks whether a capture's backing file is still present.
func (s *AssetStore) Exists(storedPath string) bool {
	fullPath, err := s.FullPath(storedPath)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// Delete removes a capture's backing file.
func (s *AssetStore) Delete(storedPath string) bool {
	fullPath, err := s.FullPath(storedPath)
	if err != nil {
		return false
	}
	return os.Remove(fullPath) == nil
}

// Sweep removes the backing files of the given images, bounding local
// storage growth after their period closed. Returns how many files were
// removed.
func (s *AssetStore) Sweep(images []*models.ReadingImage) int {
	removed := 0
	for _, img := range images {
		if s.Delete(img.StoredPath) {
			removed++
		}
	}
	return removed
}

// FullPath resolves a stored path under the base directory, rejecting
// traversal outside it.
func (s *AssetStore) FullPath(storedPath string) (string, error) {
	if strings.TrimSpace(storedPath) == "" {
		return "", fmt.Errorf("stored path cannot be empty")
	}

	fullPath := filepath.Join(s.basePath, filepath.FromSlash(storedPath))
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", err
	}
	if absPath != s.basePath && !strings.HasPrefix(absPath, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid stored path: %s", storedPath)
	}
	return absPath, nil
}

// decodeCapture decodes a capture, handling HEIC/HEIF from phone cameras
// separately from formats the standard registry knows.
func decodeCapture(data []byte, filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == ".heic" || ext == ".heif" {
		return goheif.Decode(bytes.NewReader(data))
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// Some gallery pickers hand over HEIC without the extension
		if heicImg, heicErr := goheif.Decode(bytes.NewReader(data)); heicErr == nil {
			return heicImg, nil
		}
		return nil, err
	}
	return img, nil
}

// applyOrientation corrects pixel orientation from the EXIF orientation tag.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Rotate270(imaging.FlipH(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Rotate90(imaging.FlipH(img))
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
