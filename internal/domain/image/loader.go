package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	stdimage "image"
	"io/fs"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"plant-detector-go/internal/utils"
)

// Loader reads image files and encodes them for inline transport.
// It performs no resizing or enhancement and enforces no size cap.
type Loader struct {
	mimeType string
	logger   *utils.Logger
}

// Options configures the loader.
type Options struct {
	// MIMEType is declared on every payload; defaults to image/jpeg.
	MIMEType string
	Logger   *utils.Logger
}

// NewLoader constructs a Loader.
func NewLoader(opts Options) *Loader {
	mime := opts.MIMEType
	if mime == "" {
		mime = DefaultMIMEType
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return &Loader{mimeType: mime, logger: logger}
}

// Load reads path into memory and base64 encodes it.
// A missing file is reported as StatusNotFound, not as an error. Other I/O
// failures (permissions, path is a directory) are returned as errors.
func (l *Loader) Load(path string) (LoadResult, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return LoadResult{Status: StatusNotFound, Path: path}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return LoadResult{}, fmt.Errorf("image path %s is a directory", path)
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// deleted between stat and read
		return LoadResult{Status: StatusNotFound, Path: path}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("read image: %w", err)
	}

	encoded := l.Encode(path, raw)
	return LoadResult{Status: StatusOK, Path: path, Image: encoded}, nil
}

// Encode base64 encodes raw bytes already in memory, such as an upload.
// source is only used for logging and EncodedImage.Path.
func (l *Loader) Encode(source string, raw []byte) EncodedImage {
	encoded := EncodedImage{
		Path:     source,
		Base64:   base64.StdEncoding.EncodeToString(raw),
		MIMEType: l.mimeType,
		Size:     int64(len(raw)),
	}
	if cfg, format, err := stdimage.DecodeConfig(bytes.NewReader(raw)); err == nil {
		encoded.Format = format
		encoded.Width = cfg.Width
		encoded.Height = cfg.Height
	} else {
		l.logger.DebugTag("Image", "format sniffing failed for %s: %v", source, err)
	}

	l.logger.DebugTag("Image", "loaded %s: bytes=%d format=%s %dx%d",
		source, encoded.Size, encoded.Format, encoded.Width, encoded.Height)
	return encoded
}
