package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"classroll/internal/export"
	"classroll/internal/metrics"
	"classroll/internal/model"
	"classroll/internal/notify"
	"classroll/internal/store"
)

// Registration is the input for AddStudent.
type Registration struct {
	Name       string `json:"name" validate:"required"`
	RollNumber string `json:"rollNumber" validate:"required"`
	Photo      string `json:"photo" validate:"required"`
}

// Store owns the roster, the attendance records and their derived
// summaries. Every mutation is written through to Blobs before it returns.
type Store struct {
	mu       sync.RWMutex
	blobs    store.Blobs
	notifier notify.Notifier
	now      func() time.Time
	newID    func() string
	validate *validator.Validate

	students []model.Student
	records  []model.AttendanceRecord
	summary  []model.AttendanceSummary
}

// Option customizes a Store.
type Option func(*Store)

// WithNotifier routes user-facing messages to n.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithClock replaces time.Now; "today" is taken from the clock's location.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// Open loads both collections once. Unparseable data is logged and treated
// as empty; a failing backend aborts.
func Open(ctx context.Context, blobs store.Blobs, opts ...Option) (*Store, error) {
	s := &Store{
		blobs:    blobs,
		notifier: notify.Discard,
		now:      time.Now,
		newID:    uuid.NewString,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	students, err := load[model.Student](ctx, blobs, store.KeyStudents)
	if err != nil {
		return nil, err
	}
	records, err := load[model.AttendanceRecord](ctx, blobs, store.KeyAttendanceRecords)
	if err != nil {
		return nil, err
	}
	s.students = students
	s.records = records
	s.recompute()
	return s, nil
}

func load[T any](ctx context.Context, blobs store.Blobs, key string) ([]T, error) {
	data, err := blobs.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		log.Printf("failed to parse %s from storage: %v", key, err)
		return []T{}, nil
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// recompute rebuilds summaries; callers hold the write lock.
func (s *Store) recompute() {
	s.summary = Summarize(s.records, len(s.students))
}

func (s *Store) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err == nil {
		err = s.blobs.Put(ctx, key, data)
	}
	if err != nil {
		metrics.StoreWrites.WithLabelValues(key, "error").Inc()
		return fmt.Errorf("persist %s: %w", key, err)
	}
	metrics.StoreWrites.WithLabelValues(key, "ok").Inc()
	return nil
}

func (s *Store) fail(ctx context.Context, msg string, err error) error {
	log.Printf("%s: %v", msg, err)
	notify.Send(ctx, s.notifier, notify.Error, msg)
	return err
}

// Today is the local calendar date according to the store clock.
func (s *Store) Today() string {
	return s.now().Format(model.DateLayout)
}

// AddStudent registers a student with a fresh id and timestamp.
func (s *Store) AddStudent(ctx context.Context, reg Registration) (model.Student, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.RollNumber = strings.TrimSpace(reg.RollNumber)
	if err := s.validate.Struct(reg); err != nil {
		var fields []FieldError
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields = append(fields, FieldError{Field: fe.Field(), Error: fe.Tag()})
			}
		}
		notify.Send(ctx, s.notifier, notify.Error, "Please fill in all required fields")
		return model.Student{}, NewValidationError(errRequiredFields, fields...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.students {
		if strings.EqualFold(st.RollNumber, reg.RollNumber) {
			notify.Send(ctx, s.notifier, notify.Error, "Roll number "+reg.RollNumber+" is already registered")
			return model.Student{}, ErrDuplicateRoll
		}
	}

	st := model.Student{
		ID:           s.newID(),
		Name:         reg.Name,
		RollNumber:   reg.RollNumber,
		ImageURL:     reg.Photo,
		RegisteredAt: s.now().UTC(),
	}
	next := append(append([]model.Student(nil), s.students...), st)
	if err := s.write(ctx, store.KeyStudents, next); err != nil {
		return model.Student{}, s.fail(ctx, "Failed to save student", err)
	}
	s.students = next
	s.recompute()
	notify.Send(ctx, s.notifier, notify.Success, st.Name+" has been added successfully!")
	return st, nil
}

// RemoveStudent deletes the student and every record referencing it.
func (s *Store) RemoveStudent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, st := range s.students {
		if st.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrStudentNotFound
	}

	students := make([]model.Student, 0, len(s.students)-1)
	students = append(students, s.students[:idx]...)
	students = append(students, s.students[idx+1:]...)
	records := RemoveStudentRecords(s.records, id)

	if err := s.write(ctx, store.KeyAttendanceRecords, records); err != nil {
		return s.fail(ctx, "Failed to remove student", err)
	}
	if err := s.write(ctx, store.KeyStudents, students); err != nil {
		// put the records back so storage does not disagree with memory
		if rerr := s.write(ctx, store.KeyAttendanceRecords, s.records); rerr != nil {
			log.Printf("restore attendance records failed: %v", rerr)
		}
		return s.fail(ctx, "Failed to remove student", err)
	}
	s.students = students
	s.records = records
	s.recompute()
	notify.Send(ctx, s.notifier, notify.Success, "Student removed successfully")
	return nil
}

// UpsertAttendance marks the student for today. An unknown student is a
// silent no-op and reports ok=false.
func (s *Store) UpsertAttendance(ctx context.Context, studentID string, present bool) (model.AttendanceRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st *model.Student
	for i := range s.students {
		if s.students[i].ID == studentID {
			st = &s.students[i]
			break
		}
	}
	if st == nil {
		return model.AttendanceRecord{}, false, nil
	}

	now := s.now()
	next := append([]model.AttendanceRecord(nil), s.records...)
	next, rec, _ := Upsert(next, *st, now.Format(model.DateLayout), now.Format(model.TimeLayout), present, s.newID)
	if err := s.write(ctx, store.KeyAttendanceRecords, next); err != nil {
		return model.AttendanceRecord{}, false, s.fail(ctx, "Failed to save attendance", err)
	}
	s.records = next
	s.recompute()
	if present {
		notify.Send(ctx, s.notifier, notify.Success, "Attendance marked for "+st.Name)
	}
	return rec, true, nil
}

// DeleteRecordsForDate removes all records on date.
func (s *Store) DeleteRecordsForDate(ctx context.Context, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := RemoveDate(s.records, date)
	if err := s.write(ctx, store.KeyAttendanceRecords, next); err != nil {
		return 0, s.fail(ctx, "Failed to delete attendance records", err)
	}
	s.records = next
	s.recompute()
	notify.Send(ctx, s.notifier, notify.Success, fmt.Sprintf("Attendance records for %s have been deleted", date))
	return removed, nil
}

// DeleteToday removes today's records.
func (s *Store) DeleteToday(ctx context.Context) (int, error) {
	return s.DeleteRecordsForDate(ctx, s.Today())
}

// Students returns the roster in registration order.
func (s *Store) Students() []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Student{}, s.students...)
}

// Student looks a student up by id.
func (s *Store) Student(id string) (model.Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.students {
		if st.ID == id {
			return st, true
		}
	}
	return model.Student{}, false
}

// SearchStudents filters the roster by name or roll number.
func (s *Store) SearchStudents(query string) []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SearchStudents(s.students, query)
}

// Unrecognized returns roster members not in exclude, in roster order.
func (s *Store) Unrecognized(exclude map[string]bool) []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Student, 0, len(s.students))
	for _, st := range s.students {
		if !exclude[st.ID] {
			out = append(out, st)
		}
	}
	return out
}

// Records returns the records matching f.
func (s *Store) Records(f Filter) []model.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FilterRecords(s.records, f)
}

// Summaries returns every per-date summary.
func (s *Store) Summaries() []model.AttendanceSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.AttendanceSummary{}, s.summary...)
}

// Summary returns the summary for one date.
func (s *Store) Summary(date string) (model.AttendanceSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sum := range s.summary {
		if sum.Date == date {
			return sum, true
		}
	}
	return model.AttendanceSummary{}, false
}

// Report builds the present/absent lists for date.
func (s *Store) Report(date string) Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BuildReport(s.students, s.records, date)
}

// Export renders the CSV download for date ("" for every record). Records
// and roster are read under one lock so a concurrent removal cannot leave
// rows without their roll number.
func (s *Store) Export(date string) (export.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return export.Attendance(s.records, s.students, date)
}

// Dashboard builds the landing view for today.
func (s *Store) Dashboard() Dashboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BuildDashboard(s.summary, s.now().Format(model.DateLayout))
}

// Healthy reports whether the storage backend answers.
func (s *Store) Healthy(ctx context.Context) bool {
	return s.blobs.Healthy(ctx)
}
