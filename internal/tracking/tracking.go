// Package tracking serves the public, unauthenticated file lookup. Only a restricted view of the
// file leaves this package: no history, notes, money or contact details.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/webdoc-rokib/visa-track-sub000/internal/models"
	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visatrack_tracking_cache_hits_total",
		Help: "Public tracking lookups served from cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "visatrack_tracking_cache_misses_total",
		Help: "Public tracking lookups that went to the store.",
	})
)

type View struct {
	Found         bool      `json:"found"`
	FileID        string    `json:"file_id,omitempty"`
	ApplicantName string    `json:"applicant_name,omitempty"`
	Status        string    `json:"status,omitempty"`
	StatusLabel   string    `json:"status_label,omitempty"`
	Destination   string    `json:"destination,omitempty"`
	VisaResult    string    `json:"visa_result,omitempty"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

type FileGetter interface {
	GetFile(ctx context.Context, fileID string) (models.File, bool, error)
}

type Service struct {
	files FileGetter
	cache *expirable.LRU[string, View]
}

func NewService(files FileGetter, maxSize int, ttl time.Duration) *Service {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Service{
		files: files,
		cache: expirable.NewLRU[string, View](maxSize, nil, ttl),
	}
}

// Lookup matches the file id case-insensitively. Unknown ids yield a View with Found=false.
func (s *Service) Lookup(ctx context.Context, fileID string) (View, error) {
	key := models.NormalizeFileID(fileID)
	if key == "" {
		return View{}, nil
	}
	if view, ok := s.cache.Get(key); ok {
		cacheHitsTotal.Inc()
		return view, nil
	}
	cacheMissesTotal.Inc()

	file, ok, err := s.files.GetFile(ctx, key)
	if err != nil && !errors.Is(err, store.ErrFileNotFound) {
		return View{}, err
	}
	if !ok {
		return View{}, nil
	}
	view := NewView(file)
	s.cache.Add(key, view)
	return view, nil
}

// Invalidate drops a cached view after the file changed.
func (s *Service) Invalidate(fileID string) {
	s.cache.Remove(models.NormalizeFileID(fileID))
}

func NewView(file models.File) View {
	view := View{
		Found:         true,
		FileID:        file.FileID,
		ApplicantName: file.ApplicantName,
		Status:        file.Status,
		StatusLabel:   models.StatusLabel(file.Status),
		Destination:   file.Destination,
		UpdatedAt:     file.UpdatedAt,
	}
	if file.VisaResult != nil {
		view.VisaResult = *file.VisaResult
	}
	return view
}
