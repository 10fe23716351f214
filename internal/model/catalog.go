package model

import "time"

// Service is a bookable catalog entry.
type Service struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	Active          bool    `json:"active"`
}

// Duration returns the service length.
func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// AppointmentStatus is the lifecycle status of an appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "SCHEDULED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

// Appointment is a committed booking.
type Appointment struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	ServiceID   int64             `json:"service_id"`
	ServiceName string            `json:"service_name,omitempty"`
	Date        string            `json:"date"`       // YYYY-MM-DD
	StartTime   string            `json:"start_time"` // HH:MM
	EndTime     string            `json:"end_time"`   // HH:MM
	Status      AppointmentStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Interval is a booked [Start, End) range on a date.
type Interval struct {
	Start time.Time
	End   time.Time
}

// User is a chat user known to the salon.
type User struct {
	ID        int64
	Name      string
	Phone     string
	CreatedAt time.Time
}
