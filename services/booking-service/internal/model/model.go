package model

import "time"

// Layouts for the calendar date and wall clock fields stored on appointments.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	default:
		return false
	}
}

// CanTransition reports whether an appointment in s may move to next.
// Re-entering the current state is allowed and is a no-op for callers.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	return s == StatusConfirmed && (next == StatusCancelled || next == StatusCompleted)
}

// Service is a catalog entry. Deleted services keep their record with
// DeletedAt set so appointments can still resolve name and price.
type Service struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	DurationMinutes int        `json:"durationMinutes"`
	Price           int64      `json:"price"`
	Description     string     `json:"description"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
}

func (s Service) Active() bool { return s.DeletedAt == nil }

type Appointment struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"clientId"`
	ClientName  string    `json:"clientName"`
	ClientEmail string    `json:"clientEmail"`
	ServiceID   string    `json:"serviceId"`
	ServiceName string    `json:"serviceName"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      Status    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Occupies reports whether the appointment holds its (date, time) slot.
func (a Appointment) Occupies() bool { return a.Status != StatusCancelled }

// ScheduleDay is one weekday of the business schedule. Day follows
// time.Weekday numbering (0 = Sunday).
type ScheduleDay struct {
	Day        int    `json:"day"`
	Enabled    bool   `json:"enabled"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	BreakStart string `json:"breakStart,omitempty"`
	BreakEnd   string `json:"breakEnd,omitempty"`
}

// SpecialDate closes the business for a whole day.
type SpecialDate struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func DefaultServices() []Service {
	return []Service{
		{ID: "1", Name: "Corte de Cabello", DurationMinutes: 30, Price: 2500, Description: "Corte personalizado según tu estilo"},
		{ID: "2", Name: "Coloración", DurationMinutes: 90, Price: 8000, Description: "Coloración completa con productos premium"},
		{ID: "3", Name: "Limpieza Facial", DurationMinutes: 60, Price: 4500, Description: "Limpieza profunda y tratamiento facial"},
		{ID: "4", Name: "Manicura", DurationMinutes: 45, Price: 3000, Description: "Cuidado completo de uñas"},
	}
}

// DefaultSchedule opens Monday to Friday 09:00-18:00 with a 13:00-14:00
// break, Saturday 09:00-16:00, and closes Sunday.
func DefaultSchedule() []ScheduleDay {
	days := make([]ScheduleDay, 0, 7)
	for d := 0; d < 7; d++ {
		switch time.Weekday(d) {
		case time.Sunday:
			days = append(days, ScheduleDay{Day: d, StartTime: "09:00", EndTime: "18:00"})
		case time.Saturday:
			days = append(days, ScheduleDay{Day: d, Enabled: true, StartTime: "09:00", EndTime: "16:00"})
		default:
			days = append(days, ScheduleDay{Day: d, Enabled: true, StartTime: "09:00", EndTime: "18:00", BreakStart: "13:00", BreakEnd: "14:00"})
		}
	}
	return days
}

// ParseDate parses a "YYYY-MM-DD" calendar date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute).Format(TimeLayout)
}
