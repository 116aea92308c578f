package evidence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reinvest-cli/internal/model"
)

// Sink persists evidence images and their metadata.
type Sink interface {
	SaveImage(ctx context.Context, name string, png []byte) (string, error)
	ArtifactRecorder
}

// ArtifactRecorder records evidence metadata.
type ArtifactRecorder interface {
	SaveArtifact(ctx context.Context, art model.EvidenceArtifact) error
}

// FileSink writes images into a directory and keeps a JSON list of
// artifacts, one entry per company.
type FileSink struct {
	dir          string
	metadataPath string
	mu           sync.Mutex
}

// NewFileSink creates a FileSink. An empty metadataPath puts the metadata
// file in dir.
func NewFileSink(dir, metadataPath string) *FileSink {
	if metadataPath == "" {
		metadataPath = filepath.Join(dir, "evidence_metadata.json")
	}
	return &FileSink{dir: dir, metadataPath: metadataPath}
}

// SaveImage writes png under name and returns its path.
func (s *FileSink) SaveImage(_ context.Context, name string, png []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "evidence: create dir %s", s.dir)
	}
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", eris.Wrapf(err, "evidence: write %s", path)
	}
	return path, nil
}

// SaveArtifact adds art to the metadata file, replacing any entry for the
// same company.
func (s *FileSink) SaveArtifact(_ context.Context, art model.EvidenceArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	arts, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range arts {
		if arts[i].CompanySymbol == art.CompanySymbol {
			arts[i] = art
			replaced = true
		}
	}
	if !replaced {
		arts = append(arts, art)
	}

	data, err := json.MarshalIndent(arts, "", "  ")
	if err != nil {
		return eris.Wrap(err, "evidence: marshal metadata")
	}
	if err := os.MkdirAll(filepath.Dir(s.metadataPath), 0o755); err != nil {
		return eris.Wrap(err, "evidence: create metadata dir")
	}
	if err := os.WriteFile(s.metadataPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "evidence: write %s", s.metadataPath)
	}
	return nil
}

// Artifacts returns the recorded artifacts.
func (s *FileSink) Artifacts() ([]model.EvidenceArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileSink) load() ([]model.EvidenceArtifact, error) {
	data, err := os.ReadFile(s.metadataPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: read %s", s.metadataPath)
	}
	var arts []model.EvidenceArtifact
	if err := json.Unmarshal(data, &arts); err != nil {
		return nil, eris.Wrapf(err, "evidence: parse %s", s.metadataPath)
	}
	return arts, nil
}

// Tee records artifacts with every recorder after sink.
func Tee(sink Sink, recorders ...ArtifactRecorder) Sink {
	return &teeSink{Sink: sink, recorders: recorders}
}

type teeSink struct {
	Sink
	recorders []ArtifactRecorder
}

func (t *teeSink) SaveArtifact(ctx context.Context, art model.EvidenceArtifact) error {
	if err := t.Sink.SaveArtifact(ctx, art); err != nil {
		return err
	}
	for _, r := range t.recorders {
		if err := r.SaveArtifact(ctx, art); err != nil {
			return err
		}
	}
	return nil
}
