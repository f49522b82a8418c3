package contacts

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fieldreach/outreach/internal/fsstore"
)

const (
	progressFileVersion = 1
	progressFileName    = "progress.json"
	progressLockKey     = "state.progress"
)

type progressFile struct {
	Version  int                 `json:"version"`
	Contacts map[string]Progress `json:"contacts"`
}

// FileStore keeps all contact progress in a single JSON file under the
// state directory. An in-process mutex serializes goroutines; a file lock
// serializes processes sharing the same directory.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore returns a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

func (s *FileStore) progressPath() string {
	return filepath.Join(s.root, progressFileName)
}

func (s *FileStore) lockPath() (string, error) {
	return fsstore.BuildLockPath(filepath.Join(s.root, ".fslocks"), progressLockKey)
}

func (s *FileStore) load() (*progressFile, error) {
	var pf progressFile
	found, err := fsstore.ReadJSON(s.progressPath(), &pf)
	if err != nil {
		return nil, err
	}
	if !found {
		return &progressFile{Version: progressFileVersion, Contacts: map[string]Progress{}}, nil
	}
	if pf.Version != progressFileVersion {
		return nil, fmt.Errorf("contacts: unsupported progress file version %d", pf.Version)
	}
	if pf.Contacts == nil {
		pf.Contacts = map[string]Progress{}
	}
	return &pf, nil
}

func (s *FileStore) save(pf *progressFile) error {
	return fsstore.WriteJSONAtomic(s.progressPath(), pf, fsstore.FileOptions{})
}

// withFileLock runs fn while holding both the in-process mutex and the
// advisory file lock.
func (s *FileStore) withFileLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lockPath, err := s.lockPath()
	if err != nil {
		return err
	}
	return fsstore.WithLock(ctx, lockPath, fn)
}

func normalizeContactID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("contacts: empty contact id")
	}
	return id, nil
}

func (s *FileStore) Ensure(ctx context.Context, contactID string) (Progress, error) {
	id, err := normalizeContactID(contactID)
	if err != nil {
		return Progress{}, err
	}
	var out Progress
	err = s.withFileLock(ctx, func() error {
		pf, err := s.load()
		if err != nil {
			return err
		}
		p, ok := pf.Contacts[id]
		if !ok {
			p = Progress{ContactID: id}
			pf.Contacts[id] = p
			if err := s.save(pf); err != nil {
				return err
			}
		}
		out = p
		return nil
	})
	return out, err
}

func (s *FileStore) GetProgress(ctx context.Context, contactID string) (Progress, error) {
	id, err := normalizeContactID(contactID)
	if err != nil {
		return Progress{}, err
	}
	var out Progress
	err = s.withFileLock(ctx, func() error {
		pf, err := s.load()
		if err != nil {
			return err
		}
		p, ok := pf.Contacts[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		out = p
		return nil
	})
	return out, err
}

func (s *FileStore) PutProgress(ctx context.Context, p Progress) error {
	id, err := normalizeContactID(p.ContactID)
	if err != nil {
		return err
	}
	p.ContactID = id
	return s.withFileLock(ctx, func() error {
		pf, err := s.load()
		if err != nil {
			return err
		}
		pf.Contacts[id] = p
		return s.save(pf)
	})
}

func (s *FileStore) ListProgress(ctx context.Context) ([]Progress, error) {
	var out []Progress
	err := s.withFileLock(ctx, func() error {
		pf, err := s.load()
		if err != nil {
			return err
		}
		out = make([]Progress, 0, len(pf.Contacts))
		for _, p := range pf.Contacts {
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FileStore) Reset(ctx context.Context) error {
	return s.withFileLock(ctx, func() error {
		return s.save(&progressFile{Version: progressFileVersion, Contacts: map[string]Progress{}})
	})
}
