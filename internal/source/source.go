package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
)

var ErrUnknownScheme = errors.New("source: no fetcher registered for scheme")

// Fetcher returns the complete contents of one file. Implementations do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Lister expands a location into the files it names. A directory yields its
// files carrying ext; a file yields itself.
type Lister interface {
	List(ctx context.Context, location, ext string) ([]FileMeta, error)
}

// FileMeta describes one listed file.
type FileMeta struct {
	Location     string    `json:"location"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

func (m FileMeta) IsEmpty() bool { return m.Size == 0 }

// AcquisitionError wraps any failure to obtain a file's bytes.
type AcquisitionError struct {
	Location string
	Err      error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("source: fetch %q: %v", e.Location, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Acquisition marks the error for csvformat.KindOf.
func (e *AcquisitionError) Acquisition() bool { return true }

func acquisition(location string, err error) error {
	var ae *AcquisitionError
	if errors.As(err, &ae) {
		return err
	}
	return &AcquisitionError{Location: location, Err: err}
}

// ParseURL splits a location into scheme, host and path. Plain paths have an empty scheme.
func ParseURL(location string) (scheme, host, path string, err error) {
	if location == "" {
		return "", "", "", fmt.Errorf("source: empty location")
	}
	if !strings.Contains(location, "://") {
		return "", "", location, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", "", "", fmt.Errorf("source: parse %q: %w", location, err)
	}
	if u.Scheme == "" {
		return "", "", "", fmt.Errorf("source: missing scheme in %q", location)
	}
	return strings.ToLower(u.Scheme), u.Host, u.Path, nil
}

// MakeURL is the inverse of ParseURL for locations with a scheme.
func MakeURL(scheme, host, path string) string {
	if scheme == "" {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + host + path
}

// Registry dispatches on a location's scheme. The empty scheme and "file" share one entry.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

func normScheme(s string) string {
	s = strings.ToLower(s)
	if s == "file" {
		return ""
	}
	return s
}

func (r *Registry) Register(scheme string, f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[normScheme(scheme)] = f
}

func (r *Registry) lookup(location string) (Fetcher, string, error) {
	scheme, _, path, err := ParseURL(location)
	if err != nil {
		return nil, "", acquisition(location, err)
	}

	r.mu.RLock()
	f, ok := r.fetchers[normScheme(scheme)]
	r.mu.RUnlock()
	if !ok {
		return nil, "", acquisition(location, fmt.Errorf("%w %q", ErrUnknownScheme, scheme))
	}

	// Local fetchers receive a path; everything else gets the full URL.
	if normScheme(scheme) == "" {
		return f, path, nil
	}
	return f, location, nil
}

func (r *Registry) Fetch(ctx context.Context, location string) ([]byte, error) {
	f, loc, err := r.lookup(location)
	if err != nil {
		return nil, err
	}
	data, err := f.Fetch(ctx, loc)
	if err != nil {
		return nil, acquisition(location, err)
	}
	return data, nil
}

// List uses the scheme's Lister when it has one; otherwise the location is taken as a single file.
func (r *Registry) List(ctx context.Context, location, ext string) ([]FileMeta, error) {
	f, loc, err := r.lookup(location)
	if err != nil {
		return nil, err
	}
	l, ok := f.(Lister)
	if !ok {
		return []FileMeta{{Location: location}}, nil
	}
	metas, err := l.List(ctx, loc, ext)
	if err != nil {
		return nil, acquisition(location, err)
	}
	return metas, nil
}

// RegistryConfig selects which schemes a registry serves.
type RegistryConfig struct {
	Schemes      []string
	FS           afero.Fs
	Root         string
	HTTPTimeout  time.Duration
	HTTPMaxBytes int64
}

// BuildRegistry registers a fetcher for each configured scheme ("file", "http", "https").
func BuildRegistry(cfg RegistryConfig) (*Registry, error) {
	reg := NewRegistry()
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	for _, raw := range cfg.Schemes {
		switch scheme := strings.ToLower(strings.TrimSpace(raw)); scheme {
		case "file", "":
			reg.Register("file", NewLocalFetcher(cfg.FS, cfg.Root))
		case "http", "https":
			hf := NewHTTPFetcher(&http.Client{Timeout: timeout})
			hf.MaxBytes = cfg.HTTPMaxBytes
			reg.Register(scheme, hf)
		default:
			return nil, fmt.Errorf("source: unsupported scheme %q", raw)
		}
	}
	return reg, nil
}
