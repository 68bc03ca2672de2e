// Package blobstore stores report artifacts for the reporting pipeline. It
// defines the BlobStore interface, an in-memory implementation for testing
// and development, a deadline-bounded wrapper for use on mutation paths, and
// Echo handlers for artifact download and metadata retrieval.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrBlobTooLarge    = errors.New("blob exceeds maximum allowed size")
	ErrMissingFileName = errors.New("file name is required")
	// ErrTimeout is returned by the bounded wrapper when the backing store
	// does not answer within the configured bound.
	ErrTimeout = errors.New("blob store call exceeded time bound")
)

// MaxBlobSize is the maximum allowed artifact size in bytes (50 MB).
const MaxBlobSize = 50 * 1024 * 1024

// AllowedKinds lists valid report artifact kinds.
var AllowedKinds = map[string]bool{
	"final-report": true,
	"addendum":     true,
	"key-image":    true,
	"worksheet":    true,
	"other":        true,
}

// BlobMetadata describes a stored artifact.
type BlobMetadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Kind        string    `json:"kind"`
	StudyID     string    `json:"study_id,omitempty"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by"`
}

// BlobStore is the storage contract consumed by the report lifecycle. The
// core treats blob IDs as opaque keys.
type BlobStore interface {
	Put(ctx context.Context, meta BlobMetadata, content []byte) (*BlobMetadata, error)
	Get(ctx context.Context, id string) ([]byte, *BlobMetadata, error)
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	ListByStudy(ctx context.Context, studyID string) ([]*BlobMetadata, error)
}

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{blobs: make(map[string]*storedBlob)}
}

// Put validates inputs, computes a SHA-256 content hash, and stores the blob.
func (s *InMemoryBlobStore) Put(_ context.Context, meta BlobMetadata, content []byte) (*BlobMetadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if int64(len(content)) > MaxBlobSize {
		return nil, ErrBlobTooLarge
	}
	if !AllowedKinds[meta.Kind] {
		meta.Kind = "other"
	}

	h := sha256.Sum256(content)
	meta.ID = uuid.New().String()
	meta.Size = int64(len(content))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()

	data := append([]byte(nil), content...)
	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Get returns the blob content and its metadata.
func (s *InMemoryBlobStore) Get(_ context.Context, id string) ([]byte, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	meta := blob.metadata // copy
	return append([]byte(nil), blob.content...), &meta, nil
}

// GetMetadata returns blob metadata without content.
func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}
	meta := blob.metadata // copy
	return &meta, nil
}

// Delete removes a blob by ID.
func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// ListByStudy returns metadata for every artifact attached to a study.
func (s *InMemoryBlobStore) ListByStudy(_ context.Context, studyID string) ([]*BlobMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*BlobMetadata
	for _, b := range s.blobs {
		if b.metadata.StudyID == studyID {
			m := b.metadata // copy
			out = append(out, &m)
		}
	}
	return out, nil
}

// Bounded wraps a BlobStore so every call carries a deadline. The report
// lifecycle depends on this: a hanging storage backend must surface as
// ErrTimeout instead of stalling a study mutation.
type Bounded struct {
	inner   BlobStore
	timeout time.Duration
}

// NewBounded wraps store with the given per-call timeout.
func NewBounded(store BlobStore, timeout time.Duration) *Bounded {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bounded{inner: store, timeout: timeout}
}

func (b *Bounded) Put(ctx context.Context, meta BlobMetadata, content []byte) (*BlobMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type result struct {
		meta *BlobMetadata
		err  error
	}
	done := make(chan result, 1)
	go func() {
		m, err := b.inner.Put(ctx, meta, content)
		done <- result{m, err}
	}()

	select {
	case r := <-done:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return r.meta, r.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (b *Bounded) Get(ctx context.Context, id string) ([]byte, *BlobMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	data, meta, err := b.inner.Get(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, nil, ErrTimeout
	}
	return data, meta, err
}

func (b *Bounded) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	meta, err := b.inner.GetMetadata(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return meta, err
}

func (b *Bounded) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	err := b.inner.Delete(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func (b *Bounded) ListByStudy(ctx context.Context, studyID string) ([]*BlobMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	out, err := b.inner.ListByStudy(ctx, studyID)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, ErrTimeout
	}
	return out, err
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// BlobHandler provides Echo HTTP handlers for artifact retrieval.
type BlobHandler struct {
	store BlobStore
}

// NewBlobHandler creates a new BlobHandler.
func NewBlobHandler(store BlobStore) *BlobHandler {
	return &BlobHandler{store: store}
}

// RegisterRoutes mounts artifact routes on the supplied Echo group.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/artifacts/:id", h.handleDownload)
	g.GET("/artifacts/:id/metadata", h.handleGetMetadata)
	g.GET("/studies/:studyId/artifacts", h.handleListByStudy)
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	data, meta, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, bytes.NewReader(data))
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	meta, err := h.store.GetMetadata(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleListByStudy(c echo.Context) error {
	items, err := h.store.ListByStudy(c.Request().Context(), c.Param("studyId"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []*BlobMetadata{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": items, "total": len(items)})
}
