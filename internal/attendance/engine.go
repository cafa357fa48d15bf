package attendance

import (
	"math"
	"sort"
	"strings"

	"classroll/internal/model"
)

// Upsert marks a student for a date. An existing (student, date) record is
// updated in place; otherwise a new record is appended. The returned slice
// may share its backing array with records.
func Upsert(records []model.AttendanceRecord, st model.Student, date, timeIn string, present bool, newID func() string) ([]model.AttendanceRecord, model.AttendanceRecord, bool) {
	if !present {
		timeIn = ""
	}
	for i := range records {
		if records[i].StudentID == st.ID && records[i].Date == date {
			records[i].Present = present
			records[i].TimeIn = timeIn
			return records, records[i], false
		}
	}
	rec := model.AttendanceRecord{
		ID:          newID(),
		StudentID:   st.ID,
		StudentName: st.Name,
		Date:        date,
		TimeIn:      timeIn,
		Present:     present,
	}
	return append(records, rec), rec, true
}

// RemoveStudentRecords drops every record owned by studentID.
func RemoveStudentRecords(records []model.AttendanceRecord, studentID string) []model.AttendanceRecord {
	out := make([]model.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if r.StudentID != studentID {
			out = append(out, r)
		}
	}
	return out
}

// RemoveDate drops every record on date and reports how many were removed.
func RemoveDate(records []model.AttendanceRecord, date string) ([]model.AttendanceRecord, int) {
	out := make([]model.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if r.Date != date {
			out = append(out, r)
		}
	}
	return out, len(records) - len(out)
}

// Summarize groups records by date, ascending, pairing each date with the
// current roster size.
func Summarize(records []model.AttendanceRecord, rosterSize int) []model.AttendanceSummary {
	present := make(map[string]int)
	for _, r := range records {
		if _, ok := present[r.Date]; !ok {
			present[r.Date] = 0
		}
		if r.Present {
			present[r.Date]++
		}
	}
	out := make([]model.AttendanceSummary, 0, len(present))
	for date, n := range present {
		out = append(out, model.AttendanceSummary{
			Date:          date,
			TotalStudents: rosterSize,
			PresentCount:  n,
			AbsentCount:   rosterSize - n,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Filter selects records. Date wins over the From/To range; range bounds are
// inclusive and either may be empty.
type Filter struct {
	Date      string
	From      string
	To        string
	StudentID string
}

func (f Filter) match(r model.AttendanceRecord) bool {
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	if f.Date != "" {
		return r.Date == f.Date
	}
	if f.From != "" && r.Date < f.From {
		return false
	}
	if f.To != "" && r.Date > f.To {
		return false
	}
	return true
}

// FilterRecords returns the records matching f in their stored order.
func FilterRecords(records []model.AttendanceRecord, f Filter) []model.AttendanceRecord {
	out := make([]model.AttendanceRecord, 0, len(records))
	for _, r := range records {
		if f.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// SearchStudents matches query against name and roll number, ignoring case.
func SearchStudents(students []model.Student, query string) []model.Student {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]model.Student, 0, len(students))
	for _, st := range students {
		if q == "" ||
			strings.Contains(strings.ToLower(st.Name), q) ||
			strings.Contains(strings.ToLower(st.RollNumber), q) {
			out = append(out, st)
		}
	}
	return out
}

// Report lists who attended on a date and who did not.
type Report struct {
	Date         string                   `json:"date"`
	Total        int                      `json:"total"`
	PresentCount int                      `json:"presentCount"`
	AbsentCount  int                      `json:"absentCount"`
	Present      []model.AttendanceRecord `json:"present"`
	Absent       []model.Student          `json:"absent"`
}

// BuildReport treats every roster member without a present record on date
// as absent, whether or not an absent record exists.
func BuildReport(students []model.Student, records []model.AttendanceRecord, date string) Report {
	rep := Report{
		Date:    date,
		Total:   len(students),
		Present: []model.AttendanceRecord{},
		Absent:  []model.Student{},
	}
	attended := make(map[string]bool)
	for _, r := range records {
		if r.Date == date && r.Present {
			rep.Present = append(rep.Present, r)
			attended[r.StudentID] = true
		}
	}
	for _, st := range students {
		if !attended[st.ID] {
			rep.Absent = append(rep.Absent, st)
		}
	}
	rep.PresentCount = len(rep.Present)
	rep.AbsentCount = rep.Total - rep.PresentCount
	return rep
}

// ChartPoint is one bar of the dashboard attendance chart.
type ChartPoint struct {
	Date       string `json:"date"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Percentage int    `json:"percentage"`
}

// Dashboard is the landing page view.
type Dashboard struct {
	Today           string                   `json:"today"`
	TodaySummary    *model.AttendanceSummary `json:"todaySummary,omitempty"`
	TodayPercentage int                      `json:"todayPercentage"`
	Chart           []ChartPoint             `json:"chart"`
}

// BuildDashboard derives the dashboard from precomputed summaries.
func BuildDashboard(summaries []model.AttendanceSummary, today string) Dashboard {
	d := Dashboard{Today: today, Chart: make([]ChartPoint, 0, len(summaries))}
	for i := range summaries {
		s := summaries[i]
		d.Chart = append(d.Chart, ChartPoint{
			Date:       s.Date,
			Present:    s.PresentCount,
			Absent:     s.AbsentCount,
			Percentage: percentage(s.PresentCount, s.TotalStudents),
		})
		if s.Date == today {
			d.TodaySummary = &s
			d.TodayPercentage = percentage(s.PresentCount, s.TotalStudents)
		}
	}
	return d
}

func percentage(n, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(n) / float64(total) * 100))
}
