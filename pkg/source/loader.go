// Package source materializes an uploaded file into an in-memory dataset.
// Local paths, file:// URLs and http(s):// URLs are supported.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// Format is a supported input encoding.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatTSV    Format = "tsv"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// ErrUnsupportedFormat is returned when no format can be determined.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// ErrTooLarge is returned when the source exceeds the configured size limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// Config holds loader settings.
type Config struct {
	MaxBytes    int64         // Maximum accepted source size (default: 100 MiB)
	HTTPTimeout time.Duration // Timeout for remote fetches (default: 60s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxBytes:    100 << 20,
		HTTPTimeout: 60 * time.Second,
	}
}

// Loader reads datasets from a locator.
type Loader struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewLoader creates a Loader. A nil client uses a client bounded by
// config.HTTPTimeout.
func NewLoader(config Config, client *http.Client, logger *zap.Logger) *Loader {
	d := DefaultConfig()
	if config.MaxBytes <= 0 {
		config.MaxBytes = d.MaxBytes
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = d.HTTPTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: config.HTTPTimeout}
	}
	return &Loader{
		config: config,
		client: client,
		logger: logger.Named("source"),
	}
}

// Describe returns the file reference for a locator without reading it.
func Describe(locator string) models.FileRef {
	name := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		name = u.Path
	}
	base := path.Base(filepath.ToSlash(name))
	return models.FileRef{
		Locator:     locator,
		Filename:    base,
		ContentType: mime.TypeByExtension(strings.ToLower(path.Ext(base))),
	}
}

// Load fetches and parses the source.
func (l *Loader) Load(ctx context.Context, locator string) (*models.Dataset, error) {
	ref := Describe(locator)
	data, contentType, err := l.fetch(ctx, locator)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = ref.ContentType
	}

	format, err := DetectFormat(ref.Filename, contentType, data)
	if err != nil {
		return nil, err
	}

	ds, err := Parse(format, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s source %q: %w", format, ref.Filename, err)
	}
	ds.Name = ref.Filename

	l.logger.Debug("Source loaded",
		zap.String("file", ref.Filename),
		zap.String("format", string(format)),
		zap.Int("bytes", len(data)),
		zap.Int("columns", len(ds.Columns)),
		zap.Int("rows", ds.RowCount()))
	return ds, nil
}

func (l *Loader) fetch(ctx context.Context, locator string) ([]byte, string, error) {
	u, err := url.Parse(locator)
	if err == nil {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l.fetchHTTP(ctx, locator)
		case "file":
			return l.readFile(u.Path)
		}
	}
	return l.readFile(locator)
}

func (l *Loader) readFile(p string) ([]byte, string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, "", fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	data, err := l.readLimited(f)
	if err != nil {
		return nil, "", err
	}
	return data, "", nil
}

func (l *Loader) fetchHTTP(ctx context.Context, locator string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build source request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch source: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > l.config.MaxBytes {
		return nil, "", ErrTooLarge
	}

	data, err := l.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return data, mediaType, nil
}

func (l *Loader) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, l.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > l.config.MaxBytes {
		return nil, ErrTooLarge
	}
	return data, nil
}

// DetectFormat picks a format from the file extension, then the content
// type, then the first non-space byte.
func DetectFormat(filename, contentType string, data []byte) (Format, error) {
	switch strings.ToLower(path.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatNDJSON, nil
	}

	switch {
	case strings.Contains(contentType, "csv"):
		return FormatCSV, nil
	case strings.Contains(contentType, "tab-separated"):
		return FormatTSV, nil
	case strings.Contains(contentType, "ndjson"), strings.Contains(contentType, "jsonl"):
		return FormatNDJSON, nil
	case strings.Contains(contentType, "json"):
		return FormatJSON, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return "", ErrUnsupportedFormat
	}
	switch trimmed[0] {
	case '[':
		return FormatJSON, nil
	case '{':
		return FormatNDJSON, nil
	}
	if strings.HasPrefix(contentType, "text/") || contentType == "" {
		return FormatCSV, nil
	}
	return "", ErrUnsupportedFormat
}

// Parse decodes data in the given format.
func Parse(format Format, data []byte) (*models.Dataset, error) {
	switch format {
	case FormatCSV:
		return parseDelimited(data, 0)
	case FormatTSV:
		return parseDelimited(data, '\t')
	case FormatJSON:
		return parseJSONArray(data)
	case FormatNDJSON:
		return parseNDJSON(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}
