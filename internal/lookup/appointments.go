package lookup

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/wolfman30/appointment-lookup/internal/meevo"
)

const statusConfirmed = "confirmed"

// Appointment is an upcoming booked service as returned to the voice agent.
type Appointment struct {
	AppointmentID        string          `json:"appointment_id"`
	AppointmentServiceID string          `json:"appointment_service_id"`
	Datetime             string          `json:"datetime"`
	EndTime              string          `json:"end_time"`
	ServiceID            string          `json:"service_id"`
	StylistID            string          `json:"stylist_id"`
	ConcurrencyCheck     json.RawMessage `json:"concurrency_check,omitempty"`
	Status               string          `json:"status"`
	ClientID             string          `json:"client_id"`
	ClientName           string          `json:"client_name"`

	// StartsAt is Datetime parsed in the location's zone; used for ordering.
	StartsAt time.Time `json:"-"`
}

// Meevo sends local wall-clock times without an offset.
var localLayouts = []string{
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

func parseStart(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// upcoming keeps appointments starting after now or anywhere in today, so an
// appointment earlier today is still read back unless it was cancelled.
func upcoming(start, now time.Time, cancelled bool) bool {
	if cancelled {
		return false
	}
	loc := now.Location()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	return start.After(now) || !start.Before(startOfDay)
}

// Appointments returns clientID's non-cancelled appointments from today on.
// Fetch failures are logged and yield an empty list so one client never
// sinks the whole lookup.
func (s *Service) Appointments(ctx context.Context, clientID, clientName string) []Appointment {
	if s.opts.AppointmentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.AppointmentTimeout)
		defer cancel()
	}

	services, err := s.dir.GetBookedServices(ctx, clientID)
	if err != nil {
		s.metrics.ObserveAppointmentFailure()
		s.logger.Warn("lookup: appointment fetch failed",
			"client_id", clientID,
			"client_name", clientName,
			"error", err,
		)
		return []Appointment{}
	}

	now := s.now().In(s.opts.Location)
	out := make([]Appointment, 0, len(services))
	for _, svc := range services {
		start, ok := parseStart(svc.StartTime, s.opts.Location)
		if !ok {
			s.logger.Debug("lookup: skipping appointment with unreadable start",
				"client_id", clientID,
				"appointment_id", svc.AppointmentID,
				"start_time", svc.StartTime,
			)
			continue
		}
		if !upcoming(start, now, svc.IsCancelled) {
			continue
		}
		out = append(out, toAppointment(svc, start, clientID, clientName))
	}
	return out
}

func toAppointment(svc meevo.BookedService, start time.Time, clientID, clientName string) Appointment {
	return Appointment{
		AppointmentID:        svc.AppointmentID,
		AppointmentServiceID: svc.AppointmentServiceID,
		Datetime:             svc.StartTime,
		EndTime:              svc.ServicingEndTime,
		ServiceID:            svc.ServiceID,
		StylistID:            svc.EmployeeID,
		ConcurrencyCheck:     svc.ConcurrencyCheckDigits,
		Status:               statusConfirmed,
		ClientID:             clientID,
		ClientName:           clientName,
		StartsAt:             start,
	}
}
