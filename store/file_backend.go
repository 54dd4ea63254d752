package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/model"
)

const (
	submissionsDir  = "submissions"
	counterFileName = "visit-counter.json"
)

var reRecordID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileBackend stores each submission as <root>/submissions/<id>.json and the
// visit counter as <root>/visit-counter.json.
type FileBackend struct {
	root string
}

func NewFileBackend(root string) (*FileBackend, error) {
	err := os.MkdirAll(filepath.Join(root, submissionsDir), 0o755)
	if err != nil {
		return nil, errors.Wrapf(err, "create data directory %s", root)
	}
	return &FileBackend{root}, nil
}

func (b *FileBackend) submissionPath(id string) string {
	return filepath.Join(b.root, submissionsDir, id+".json")
}

func (b *FileBackend) LoadSubmissions() ([]model.FormSubmission, error) {
	dir := filepath.Join(b.root, submissionsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read submissions directory %s", dir)
	}

	var skipped *multierror.Error
	subs := make([]model.FormSubmission, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			skipped = multierror.Append(skipped, errors.Wrapf(err, "read %s", name))
			continue
		}

		var sub model.FormSubmission
		if err := json.Unmarshal(raw, &sub); err != nil {
			skipped = multierror.Append(skipped, errors.Wrapf(err, "decode %s", name))
			continue
		}
		subs = append(subs, sub)
	}

	return subs, skipped.ErrorOrNil()
}

func (b *FileBackend) SaveSubmission(sub model.FormSubmission) error {
	if !reRecordID.MatchString(sub.ID) {
		return errors.Errorf("invalid submission id %q", sub.ID)
	}
	raw, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode submission %s", sub.ID)
	}
	return writeFileAtomic(b.submissionPath(sub.ID), raw)
}

func (b *FileBackend) DeleteSubmission(id string) (bool, error) {
	if !reRecordID.MatchString(id) {
		return false, nil
	}
	err := os.Remove(b.submissionPath(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, errors.Wrapf(err, "remove submission %s", id)
	}
	return true, nil
}

func (b *FileBackend) LoadCounter() (*model.VisitCounter, error) {
	raw, err := os.ReadFile(filepath.Join(b.root, counterFileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "read visit counter")
	}

	var counter model.VisitCounter
	if err := json.Unmarshal(raw, &counter); err != nil {
		return nil, b.quarantineCounter(err)
	}
	return &counter, nil
}

// quarantineCounter moves an undecodable counter file aside so that a fresh
// counter can be written in its place.
func (b *FileBackend) quarantineCounter(decodeErr error) error {
	path := filepath.Join(b.root, counterFileName)
	if err := os.Rename(path, path+".corrupt"); err != nil {
		return errors.Wrapf(err, "move aside corrupt %s", counterFileName)
	}
	log.Warnf("store.load_counter: moved %s to %s.corrupt", counterFileName, counterFileName)
	return errors.Wrapf(ErrCorruptCounter, "decode %s: %s", counterFileName, decodeErr)
}

func (b *FileBackend) SaveCounter(counter model.VisitCounter) error {
	raw, err := json.MarshalIndent(counter, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode visit counter")
	}
	return writeFileAtomic(filepath.Join(b.root, counterFileName), raw)
}

func (*FileBackend) Close() error {
	return nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, so readers never observe a partially written record.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", path)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "rename %s", path)
	}

	log.Debugf("store.write: %s (%d bytes)", path, len(data))
	return nil
}
