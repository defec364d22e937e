package storage

import (
	"sort"
	"sync"

	"todo-api/domain"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock used for timestamps.
func WithClock(now Clock) Option {
	return func(s *Store) { s.clock = newMonotonic(now) }
}

// WithStartID sets the id assigned to the first created todo.
func WithStartID(id int64) Option {
	return func(s *Store) {
		if id > 0 {
			s.nextID = id
		}
	}
}

// WithSeed creates one todo with the given text when the store is built.
func WithSeed(text string) Option {
	return func(s *Store) { s.seed = text }
}

// Store is the in-memory, insertion-ordered todo collection. Every
// operation holds the mutex for its whole duration so that concurrent
// requests never observe a half-applied mutation.
type Store struct {
	mu     sync.Mutex
	todos  []domain.Todo
	nextID int64
	clock  *monotonic
	seed   string
}

// New builds an empty Store, or one holding the seed record when WithSeed
// is given.
func New(opts ...Option) *Store {
	s := &Store{nextID: 1}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = newMonotonic(nil)
	}
	if s.seed != "" {
		s.Create(s.seed)
	}
	return s
}

// Create appends a todo with pre-validated text.
func (s *Store) Create(text string) domain.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(text, domain.FormatTime(s.clock.Now()))
}

// BulkCreate appends one todo per text, in order, sharing one timestamp.
func (s *Store) BulkCreate(texts []string) []domain.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := domain.FormatTime(s.clock.Now())
	out := make([]domain.Todo, 0, len(texts))
	for _, text := range texts {
		out = append(out, s.create(text, ts))
	}
	return out
}

func (s *Store) create(text, ts string) domain.Todo {
	t := domain.Todo{
		ID:        s.nextID,
		Text:      text,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	s.nextID++
	s.todos = append(s.todos, t)
	return t
}

// Get returns the todo with the given id.
func (s *Store) Get(id int64) (domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Todo{}, domain.ErrNotFound
	}
	return s.todos[i], nil
}

// List filters, sorts and paginates a snapshot of the collection. The
// stored order is left untouched.
func (s *Store) List(q domain.ListQuery) domain.Page {
	s.mu.Lock()
	matched := make([]domain.Todo, 0, len(s.todos))
	for _, t := range s.todos {
		if q.Matches(t) {
			matched = append(matched, t)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool { return q.Less(matched[i], matched[j]) })
	return domain.NewPage(matched, q.Limit, q.Offset)
}

// Replace overwrites text and done, keeping id and createdAt.
func (s *Store) Replace(id int64, text string, done bool) (domain.Todo, error) {
	return s.Patch(id, &text, &done)
}

// Patch updates the supplied fields and refreshes updatedAt.
func (s *Store) Patch(id int64, text *string, done *bool) (domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Todo{}, domain.ErrNotFound
	}
	t := &s.todos[i]
	if text != nil {
		t.Text = *text
	}
	if done != nil {
		t.Done = *done
	}
	t.UpdatedAt = domain.FormatTime(s.clock.Now())
	return *t, nil
}

// Delete removes the todo permanently. Its id is never reissued.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	s.todos = append(s.todos[:i], s.todos[i+1:]...)
	return nil
}

// Stats counts the collection.
func (s *Store) Stats() domain.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := domain.Stats{Total: len(s.todos)}
	for _, t := range s.todos {
		if t.Done {
			st.Done++
		}
	}
	st.Pending = st.Total - st.Done
	return st
}

func (s *Store) indexOf(id int64) int {
	for i := range s.todos {
		if s.todos[i].ID == id {
			return i
		}
	}
	return -1
}
