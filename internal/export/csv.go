package export

import (
	"errors"
	"strings"

	"classroll/internal/model"
)

// ErrEmptySelection means there was nothing to export.
var ErrEmptySelection = errors.New("no attendance records to export")

const (
	header      = "Date,Student Name,Roll Number,Time In,Status\n"
	ContentType = "text/csv;charset=utf-8"
)

// File is a rendered export ready to be served as a download.
type File struct {
	Name string
	Rows int
	Body []byte
}

// Attendance renders records as CSV, keeping only those on date when date
// is set. Values are joined without quoting, so a comma inside a name
// shifts that row's columns.
func Attendance(records []model.AttendanceRecord, students []model.Student, date string) (File, error) {
	rolls := make(map[string]string, len(students))
	for _, st := range students {
		rolls[st.ID] = st.RollNumber
	}

	var b strings.Builder
	b.WriteString(header)
	rows := 0
	for _, r := range records {
		if date != "" && r.Date != date {
			continue
		}
		roll, ok := rolls[r.StudentID]
		if !ok {
			roll = "N/A"
		}
		timeIn := r.TimeIn
		if timeIn == "" {
			timeIn = "N/A"
		}
		status := "Absent"
		if r.Present {
			status = "Present"
		}
		b.WriteString(strings.Join([]string{r.Date, r.StudentName, roll, timeIn, status}, ","))
		b.WriteByte('\n')
		rows++
	}
	if rows == 0 {
		return File{}, ErrEmptySelection
	}
	return File{Name: Filename(date), Rows: rows, Body: []byte(b.String())}, nil
}

// Filename names the download after the filter date.
func Filename(date string) string {
	if date == "" {
		return "attendance_export.csv"
	}
	return "attendance_" + date + ".csv"
}
