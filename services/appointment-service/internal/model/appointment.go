package model

import (
	"time"

	"github.com/asif-mahmud/medisched/services/appointment-service/internal/schedule"
)

// Appointment occupies [AppointmentDate, AppointmentDate+Duration) on the
// doctor's calendar while its status blocks and it is not soft-deleted.
type Appointment struct {
	ID              string
	PatientID       string
	DoctorID        string
	AppointmentDate time.Time
	Duration        int // minutes
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
	IsDeleted       bool
}

func (a Appointment) End() time.Time {
	return a.AppointmentDate.Add(time.Duration(a.Duration) * time.Minute)
}

func (a Appointment) Interval() schedule.Interval {
	return schedule.Interval{Start: a.AppointmentDate, End: a.End()}
}

// Blocks reports whether this appointment participates in conflict checks.
func (a Appointment) Blocks() bool {
	return !a.IsDeleted && a.Status.Blocking()
}
