package progress

import (
	"context"
	"errors"
	"sort"
	"sync"

	"coursedeck/internal/storage"
)

var errStoreDown = errors.New("store unavailable")

// memStore is an in-memory Store that can be switched off to simulate an
// unavailable database.
type memStore struct {
	mu         sync.Mutex
	lectures   map[string]storage.Lecture
	sections   map[string]int
	progress   map[string]storage.Progress
	lastPlayed map[string]string
	saves      []storage.Progress
	durations  map[string]int64
	down       bool
}

func newMemStore() *memStore {
	return &memStore{
		lectures:   make(map[string]storage.Lecture),
		sections:   make(map[string]int),
		progress:   make(map[string]storage.Progress),
		lastPlayed: make(map[string]string),
		durations:  make(map[string]int64),
	}
}

func (m *memStore) addLecture(l storage.Lecture, sectionOrder int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lectures[l.ID] = l
	m.sections[l.SectionID] = sectionOrder
}

func (m *memStore) setDown(down bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = down
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memStore) GetLecture(_ context.Context, id string) (*storage.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errStoreDown
	}
	l, ok := m.lectures[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (m *memStore) CourseLectures(_ context.Context, courseID string) ([]storage.Lecture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errStoreDown
	}
	var out []storage.Lecture
	for _, l := range m.lectures {
		if l.CourseID == courseID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := m.sections[out[i].SectionID], m.sections[out[j].SectionID]
		if si != sj {
			return si < sj
		}
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out, nil
}

func (m *memStore) UpdateLectureDuration(_ context.Context, id string, seconds int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	m.durations[id] = seconds
	return nil
}

func (m *memStore) GetProgress(_ context.Context, id string) (*storage.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errStoreDown
	}
	p, ok := m.progress[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memStore) SaveProgress(_ context.Context, p *storage.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	m.progress[p.LectureID] = *p
	m.saves = append(m.saves, *p)
	return nil
}

func (m *memStore) states(match func(storage.Lecture) bool) ([]storage.LectureState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, errStoreDown
	}
	var out []storage.LectureState
	for _, l := range m.lectures {
		if match(l) {
			out = append(out, storage.LectureState{
				LectureID:    l.ID,
				SectionID:    l.SectionID,
				WatchedState: m.progress[l.ID].WatchedState,
			})
		}
	}
	return out, nil
}

func (m *memStore) CourseLectureStates(_ context.Context, courseID string) ([]storage.LectureState, error) {
	return m.states(func(l storage.Lecture) bool { return l.CourseID == courseID })
}

func (m *memStore) SectionLectureStates(_ context.Context, sectionID string) ([]storage.LectureState, error) {
	return m.states(func(l storage.Lecture) bool { return l.SectionID == sectionID })
}

func (m *memStore) SetLastPlayed(_ context.Context, courseID, lectureID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errStoreDown
	}
	m.lastPlayed[courseID] = lectureID
	return nil
}

func (m *memStore) GetLastPlayed(_ context.Context, courseID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", errStoreDown
	}
	return m.lastPlayed[courseID], nil
}

type existingFiles map[string]bool

func (f existingFiles) FileExists(path string) bool { return f[path] }
