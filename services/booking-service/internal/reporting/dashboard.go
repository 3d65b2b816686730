package reporting

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const defaultUpcomingLimit = 5

// Dashboard is the admin rollup over the appointment log. Revenue uses the
// current catalog price of each referenced service.
type Dashboard struct {
	ReferenceDate   string              `json:"referenceDate"`
	TodayCount      int                 `json:"todayCount"`
	WeekCount       int                 `json:"weekCount"`
	MonthCount      int                 `json:"monthCount"`
	TotalRevenue    int64               `json:"totalRevenue"`
	PerServiceStats []ServiceStat       `json:"perServiceStats"`
	WeeklySeries    []DayCount          `json:"weeklySeries"`
	StatusBreakdown StatusBreakdown     `json:"statusBreakdown"`
	Upcoming        []model.Appointment `json:"upcoming"`
}

type ServiceStat struct {
	ServiceID        string `json:"serviceId"`
	ServiceName      string `json:"serviceName"`
	AppointmentCount int    `json:"appointmentCount"`
	Revenue          int64  `json:"revenue"`
	Deleted          bool   `json:"deleted,omitempty"`
}

type DayCount struct {
	Date  string `json:"date"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type StatusBreakdown struct {
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Completed int `json:"completed"`
}

type Options struct {
	Locale        string
	UpcomingLimit int
}

// Build computes the dashboard for the day containing ref, in ref's
// location. Appointments with unparseable dates only count toward the status
// breakdown and revenue.
func Build(appointments []model.Appointment, services []model.Service, ref time.Time, opts Options) Dashboard {
	if opts.UpcomingLimit <= 0 {
		opts.UpcomingLimit = defaultUpcomingLimit
	}
	loc := ref.Location()
	today := startOfDay(ref)
	todayStr := today.Format(model.DateLayout)
	weekStart := StartOfWeek(today)
	weekEnd := weekStart.AddDate(0, 0, 7)
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	monthEnd := monthStart.AddDate(0, 1, 0)

	catalog := make(map[string]model.Service, len(services))
	for _, s := range services {
		catalog[s.ID] = s
	}

	d := Dashboard{ReferenceDate: todayStr}
	weekly := make(map[string]int, 7)
	perService := map[string]*ServiceStat{}

	for _, a := range appointments {
		switch a.Status {
		case model.StatusConfirmed:
			d.StatusBreakdown.Confirmed++
		case model.StatusCancelled:
			d.StatusBreakdown.Cancelled++
		case model.StatusCompleted:
			d.StatusBreakdown.Completed++
		}

		svc, known := catalog[a.ServiceID]
		var price int64
		if known && svc.Price > 0 {
			price = svc.Price
		}
		if a.Status == model.StatusCompleted {
			d.TotalRevenue += price
		}

		if !a.Occupies() {
			continue
		}

		if known {
			st := perService[a.ServiceID]
			if st == nil {
				st = &ServiceStat{ServiceID: svc.ID, ServiceName: svc.Name, Deleted: !svc.Active()}
				perService[a.ServiceID] = st
			}
			st.AppointmentCount++
			if a.Status == model.StatusCompleted {
				st.Revenue += price
			}
		}

		if a.Date == todayStr {
			d.TodayCount++
		}
		day, err := model.ParseDate(a.Date, loc)
		if err != nil {
			continue
		}
		if !day.Before(weekStart) && day.Before(weekEnd) {
			d.WeekCount++
			weekly[a.Date]++
		}
		if !day.Before(monthStart) && day.Before(monthEnd) {
			d.MonthCount++
		}
	}

	d.PerServiceStats = serviceStats(services, perService)
	d.WeeklySeries = weeklySeries(weekStart, weekly, opts.Locale)
	d.Upcoming = upcoming(appointments, todayStr, opts.UpcomingLimit)
	return d
}

// serviceStats lists every active service in catalog order, plus deleted
// services that still hold non-cancelled appointments.
func serviceStats(services []model.Service, counted map[string]*ServiceStat) []ServiceStat {
	out := make([]ServiceStat, 0, len(services))
	for _, s := range services {
		st, ok := counted[s.ID]
		if !s.Active() && !ok {
			continue
		}
		if !ok {
			st = &ServiceStat{ServiceID: s.ID, ServiceName: s.Name}
		}
		out = append(out, *st)
	}
	return out
}

func weeklySeries(weekStart time.Time, counts map[string]int, locale string) []DayCount {
	labels := ShortWeekdays(locale)
	series := make([]DayCount, 7)
	for i := 0; i < 7; i++ {
		date := weekStart.AddDate(0, 0, i).Format(model.DateLayout)
		series[i] = DayCount{Date: date, Label: labels[i], Count: counts[date]}
	}
	return series
}

// upcoming lists confirmed appointments dated fromDate or later. Completed
// and cancelled ones are no longer pending.
func upcoming(appointments []model.Appointment, fromDate string, limit int) []model.Appointment {
	out := []model.Appointment{}
	for _, a := range appointments {
		if a.Status == model.StatusConfirmed && a.Date >= fromDate {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}
