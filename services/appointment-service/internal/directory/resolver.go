package directory

import (
	"context"
	"errors"
	"log/slog"
)

// UnknownDisplayName is substituted when enrichment cannot resolve a name.
// Enrichment failures never hide appointment data.
const UnknownDisplayName = "Unknown"

// DoctorCache is a local replica of doctor records, kept warm by consuming
// directory events. Used as a fallback when the doctor directory is down.
type DoctorCache interface {
	GetDoctor(ctx context.Context, id string) (DoctorRef, bool, error)
}

// PatientSource and DoctorSource are the live directory lookups.
type PatientSource interface {
	ResolvePatient(ctx context.Context, bearer, id string) (PatientRef, error)
}

type DoctorSource interface {
	ResolveDoctor(ctx context.Context, bearer, id string) (DoctorRef, error)
}

// Resolver decides how directory failures surface. Existence checks before a
// write are hard failures; display enrichment on reads degrades to the cached
// replica and then to UnknownDisplayName.
type Resolver struct {
	patients PatientSource
	doctors  DoctorSource
	cache    DoctorCache
	log      *slog.Logger
}

func NewResolver(patients PatientSource, doctors DoctorSource, cache DoctorCache, log *slog.Logger) *Resolver {
	return &Resolver{patients: patients, doctors: doctors, cache: cache, log: log}
}

// CheckPatientExists verifies the patient id before an appointment write.
// Any failure, including directory downtime, blocks the write.
func (r *Resolver) CheckPatientExists(ctx context.Context, bearer, id string) error {
	_, err := r.patients.ResolvePatient(ctx, bearer, id)
	return err
}

// CheckDoctorBookable verifies the doctor exists and is accepting
// appointments. An inactive doctor is reported as unknown.
func (r *Resolver) CheckDoctorBookable(ctx context.Context, bearer, id string) error {
	ref, err := r.doctors.ResolveDoctor(ctx, bearer, id)
	if err != nil {
		return err
	}
	if !ref.Active {
		return ErrUnknownIdentity
	}
	return nil
}

// DisplayPatient resolves a patient name for read enrichment, degrading to
// UnknownDisplayName on any failure.
func (r *Resolver) DisplayPatient(ctx context.Context, bearer, id string) PatientRef {
	ref, err := r.patients.ResolvePatient(ctx, bearer, id)
	if err != nil {
		r.log.WarnContext(ctx, "patient enrichment degraded", "patient_id", id, "error", err)
		return PatientRef{ID: id, DisplayName: UnknownDisplayName}
	}
	ref.ID = id
	return ref
}

// DisplayDoctor resolves a doctor for read enrichment: live directory first,
// then the local replica, then UnknownDisplayName.
func (r *Resolver) DisplayDoctor(ctx context.Context, bearer, id string) DoctorRef {
	ref, err := r.doctors.ResolveDoctor(ctx, bearer, id)
	if err == nil {
		ref.ID = id
		return ref
	}
	if !errors.Is(err, ErrUnknownIdentity) && r.cache != nil {
		cached, ok, cacheErr := r.cache.GetDoctor(ctx, id)
		if cacheErr == nil && ok {
			r.log.WarnContext(ctx, "doctor enrichment served from replica", "doctor_id", id, "error", err)
			return cached
		}
	}
	r.log.WarnContext(ctx, "doctor enrichment degraded", "doctor_id", id, "error", err)
	return DoctorRef{ID: id, DisplayName: UnknownDisplayName}
}
