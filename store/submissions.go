package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/model"
)

const recentCount = 5

type SubmissionStore struct {
	mu      sync.RWMutex
	backend Backend
	now     Clock
	index   map[string]model.FormSubmission
}

// OpenSubmissions loads every persisted submission from backend. Unreadable
// or incomplete records are logged and skipped.
func OpenSubmissions(backend Backend, now Clock) (*SubmissionStore, error) {
	if now == nil {
		now = SystemClock
	}

	subs, err := backend.LoadSubmissions()
	var skipped *multierror.Error
	if err != nil && !errors.As(err, &skipped) {
		return nil, errors.Wrap(err, "load submissions")
	}

	index := make(map[string]model.FormSubmission, len(subs))
	for _, sub := range subs {
		if err := checkComplete(sub); err != nil {
			skipped = multierror.Append(skipped, err)
			continue
		}
		index[sub.ID] = sub
	}

	nSkipped := 0
	if skipped != nil {
		nSkipped = len(skipped.Errors)
		for _, err := range skipped.Errors {
			log.Warnf("store.load_submissions.skip: %s", err)
		}
	}
	log.Infof("store.load_submissions: %d loaded, %d skipped", len(index), nSkipped)

	return &SubmissionStore{
		backend: backend,
		now:     now,
		index:   index,
	}, nil
}

func checkComplete(sub model.FormSubmission) error {
	switch {
	case sub.ID == "":
		return errors.New("submission without id")
	case sub.FormType == "":
		return errors.Errorf("submission %s without formType", sub.ID)
	case sub.Timestamp == "":
		return errors.Errorf("submission %s without timestamp", sub.ID)
	case sub.Data == nil:
		return errors.Errorf("submission %s without data", sub.ID)
	}
	return nil
}

// Create stamps a new submission and persists it. The submission becomes
// visible only once the backend write succeeded.
func (s *SubmissionStore) Create(formType model.FormType, data map[string]any) (model.FormSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.newID()
	if err != nil {
		return model.FormSubmission{}, err
	}
	if data == nil {
		data = map[string]any{}
	}

	sub := model.FormSubmission{
		ID:        id,
		FormType:  formType,
		Timestamp: model.FormatTimestamp(s.now()),
		Data:      data,
	}

	err = s.backend.SaveSubmission(sub)
	if err != nil {
		log.Errorf("store.create_submission: %s", err)
		return model.FormSubmission{}, errors.Wrap(err, "persist submission")
	}

	s.index[id] = sub
	log.Debugf("store.create_submission: %s (%s)", id, formType)
	return sub, nil
}

func (s *SubmissionStore) newID() (string, error) {
	for {
		id, err := uuid.NewV7()
		if err != nil {
			return "", errors.Wrap(err, "generate submission id")
		}
		if _, taken := s.index[id.String()]; !taken {
			return id.String(), nil
		}
	}
}

func (s *SubmissionStore) Get(id string) (model.FormSubmission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.index[id]
	return sub, ok
}

// List returns every submission, most recent first.
func (s *SubmissionStore) List() []model.FormSubmission {
	return s.collect(func(model.FormSubmission) bool { return true })
}

// ListByType is List restricted to formType. Unknown types yield no results.
func (s *SubmissionStore) ListByType(formType model.FormType) []model.FormSubmission {
	return s.collect(func(sub model.FormSubmission) bool {
		return sub.FormType == formType
	})
}

func (s *SubmissionStore) collect(keep func(model.FormSubmission) bool) []model.FormSubmission {
	s.mu.RLock()
	subs := make([]model.FormSubmission, 0, len(s.index))
	for _, sub := range s.index {
		if keep(sub) {
			subs = append(subs, sub)
		}
	}
	s.mu.RUnlock()

	sortRecentFirst(subs)
	return subs
}

func (s *SubmissionStore) Stats() model.Stats {
	subs := s.List()

	byType := map[model.FormType]int{}
	for _, sub := range subs {
		byType[sub.FormType]++
	}

	recent := subs
	if len(recent) > recentCount {
		recent = recent[:recentCount]
	}

	return model.Stats{
		Total:  len(subs),
		ByType: byType,
		Recent: recent,
	}
}

// Delete removes a submission. It reports false, without error, when no
// submission has that id.
func (s *SubmissionStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[id]; !ok {
		return false, nil
	}

	_, err := s.backend.DeleteSubmission(id)
	if err != nil {
		log.Errorf("store.delete_submission: %s", err)
		return false, errors.Wrap(err, "delete submission")
	}

	delete(s.index, id)
	log.Debugf("store.delete_submission: %s", id)
	return true, nil
}

// Page slices subs for offset/limit pagination; a zero limit means no limit.
func Page(subs []model.FormSubmission, offset, limit int) []model.FormSubmission {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(subs) {
		return []model.FormSubmission{}
	}
	subs = subs[offset:]
	if limit > 0 && limit < len(subs) {
		subs = subs[:limit]
	}
	return subs
}

func sortRecentFirst(subs []model.FormSubmission) {
	sort.Slice(subs, func(i, j int) bool {
		ti, erri := model.ParseTimestamp(subs[i].Timestamp)
		tj, errj := model.ParseTimestamp(subs[j].Timestamp)
		if erri == nil && errj == nil && !ti.Equal(tj) {
			return ti.After(tj)
		}
		if erri != nil || errj != nil {
			if subs[i].Timestamp != subs[j].Timestamp {
				return subs[i].Timestamp > subs[j].Timestamp
			}
		}
		return subs[i].ID > subs[j].ID
	})
}
