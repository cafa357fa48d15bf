package export

import (
	"errors"
	"strings"
	"testing"

	"classroll/internal/model"
)

func TestAttendance(t *testing.T) {
	students := []model.Student{
		{ID: "a", Name: "Alice", RollNumber: "R1"},
	}
	records := []model.AttendanceRecord{
		{StudentID: "a", StudentName: "Alice", Date: "2024-01-01", TimeIn: "09:00", Present: true},
		{StudentID: "gone", StudentName: "Ghost", Date: "2024-01-01", Present: false},
		{StudentID: "a", StudentName: "Alice", Date: "2024-01-02", TimeIn: "08:55", Present: true},
	}

	f, err := Attendance(records, students, "2024-01-01")
	if err != nil {
		t.Fatal(err)
	}
	want := "Date,Student Name,Roll Number,Time In,Status\n" +
		"2024-01-01,Alice,R1,09:00,Present\n" +
		"2024-01-01,Ghost,N/A,N/A,Absent\n"
	if string(f.Body) != want {
		t.Errorf("body =\n%s\nwant\n%s", f.Body, want)
	}
	if f.Rows != 2 || f.Name != "attendance_2024-01-01.csv" {
		t.Errorf("rows=%d name=%s", f.Rows, f.Name)
	}

	all, err := Attendance(records, students, "")
	if err != nil {
		t.Fatal(err)
	}
	if all.Rows != 3 || all.Name != "attendance_export.csv" {
		t.Errorf("unfiltered rows=%d name=%s", all.Rows, all.Name)
	}
}

func TestAttendanceEmpty(t *testing.T) {
	if _, err := Attendance(nil, nil, ""); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("no records: err = %v", err)
	}
	records := []model.AttendanceRecord{{Date: "2024-01-01"}}
	if _, err := Attendance(records, nil, "2024-02-01"); !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("no records on date: err = %v", err)
	}
}

func TestAttendanceDoesNotQuote(t *testing.T) {
	records := []model.AttendanceRecord{
		{StudentID: "x", StudentName: "Smith, John", Date: "2024-01-01", TimeIn: "09:00", Present: true},
	}
	f, err := Attendance(records, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	row := strings.Split(strings.TrimSpace(string(f.Body)), "\n")[1]
	if got := len(strings.Split(row, ",")); got != 6 {
		t.Fatalf("row %q has %d fields, want 6", row, got)
	}
}
