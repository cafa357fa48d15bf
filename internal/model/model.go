package model

import "time"

// Student represents a registered student.
type Student struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RollNumber   string    `json:"rollNumber"`
	ImageURL     string    `json:"imageUrl,omitempty"`     // data URL or Cloudinary URL
	FaceEncoding []float64 `json:"faceEncoding,omitempty"` // reserved, never populated
	RegisteredAt time.Time `json:"registeredAt"`
}

// AttendanceRecord is one student's attendance on one calendar day.
type AttendanceRecord struct {
	ID          string `json:"id"`
	StudentID   string `json:"studentId"`
	StudentName string `json:"studentName"`
	Date        string `json:"date"`   // YYYY-MM-DD
	TimeIn      string `json:"timeIn"` // HH:MM, empty when absent
	Present     bool   `json:"present"`
}

// AttendanceSummary is derived from the record set and never persisted.
type AttendanceSummary struct {
	Date          string `json:"date"`
	TotalStudents int    `json:"totalStudents"`
	PresentCount  int    `json:"presentCount"`
	AbsentCount   int    `json:"absentCount"`
}

// Layouts used for record dates and arrival times.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)
