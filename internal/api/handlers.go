package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/apperr"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/dashboard"
)

// What a dashboard may offer. A missing method means the caller's role cannot
// do it from their screen.
type (
	booker interface {
		Book(ctx context.Context, req appointment.BookingRequest) (appointment.Appointment, error)
	}
	confirmer interface {
		Confirm(ctx context.Context, id string) (appointment.Appointment, error)
	}
	completer interface {
		Complete(ctx context.Context, id string) (appointment.Appointment, error)
	}
	canceler interface {
		Cancel(ctx context.Context, id string) (appointment.Appointment, error)
	}
	rescheduler interface {
		Reschedule(ctx context.Context, id, date, timeSlot string) (appointment.Appointment, error)
	}
	annotator interface {
		Annotate(ctx context.Context, id, notes string) (appointment.Appointment, error)
	}
	assigner interface {
		AssignDoctor(ctx context.Context, id, doctorRef string) (appointment.Appointment, error)
	}
	remover interface {
		Remove(ctx context.Context, id string) error
	}
	doctorLister interface {
		Doctors(ctx context.Context) ([]account.Public, error)
	}
	patientLister interface {
		Patients(ctx context.Context) ([]account.Public, error)
	}
	viewer interface {
		Appointment(ctx context.Context, id string) (appointment.Appointment, error)
	}
	slotFinder interface {
		Slots(ctx context.Context, doctorRef, date, serviceID string) ([]appointment.Slot, error)
	}
)

// capability opens the caller's dashboard and asserts it offers T.
func capability[T any](s *Server, w http.ResponseWriter, r *http.Request, what string) (T, bool) {
	var zero T
	d, err := s.dashboardFor(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return zero, false
	}
	c, ok := d.(T)
	if !ok {
		writeAppError(w, r, s.logger, fmt.Errorf("%w: your dashboard cannot %s", apperr.ErrAuthorizationDenied, what))
		return zero, false
	}
	return c, true
}

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	catalog := s.registry.Policy().Catalog()
	out := make([]ServiceResponse, 0, len(catalog))
	for _, svc := range catalog {
		out = append(out, ServiceResponse{ID: svc.ID, Name: svc.Name, DurationMinutes: int(svc.Duration / time.Minute)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listDoctors(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[doctorLister](s, w, r, "list doctors")
	if !ok {
		return
	}
	doctors, err := d.Doctors(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doctors)
}

func (s *Server) listPatients(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[patientLister](s, w, r, "list patients")
	if !ok {
		return
	}
	patients, err := d.Patients(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, patients)
}

func (s *Server) availableSlots(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[slotFinder](s, w, r, "look up slots")
	if !ok {
		return
	}
	q := r.URL.Query()
	slots, err := d.Slots(r.Context(), q.Get("doctorId"), q.Get("date"), q.Get("serviceId"))
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	out := make([]SlotResponse, 0, len(slots))
	for _, sl := range slots {
		out = append(out, SlotResponse{Label: sl.Label, Period: string(sl.Period)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listAppointments(w http.ResponseWriter, r *http.Request) {
	d, err := s.dashboardFor(r.Context())
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	q := r.URL.Query()
	var appts []appointment.Appointment
	switch v := d.(type) {
	case *dashboard.Patient:
		appts, err = v.MyAppointments(r.Context())
	case *dashboard.Doctor:
		appts, err = v.MyAppointments(r.Context(), q.Get("date"))
	case *dashboard.Admin:
		status := appointment.Status(q.Get("status"))
		if status != "" && !status.Valid() {
			writeAppError(w, r, s.logger, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, status))
			return
		}
		appts, err = v.AllAppointments(r.Context(), appointment.Filter{
			PatientRef: q.Get("patientId"),
			DoctorRef:  q.Get("doctorId"),
			Date:       q.Get("date"),
			Status:     status,
		})
	}
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, appts)
}

// getAppointment shows an appointment to admins and to its own patient or
// doctor; everyone else gets 404.
func (s *Server) getAppointment(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[viewer](s, w, r, "view appointments")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.Appointment(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.BookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	d, ok := capability[booker](s, w, r, "book appointments")
	if !ok {
		return
	}

	appt, err := d.Book(r.Context(), req)
	if err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}

	// cosmetic pause only; the booking is already committed
	if s.bookingDelay > 0 {
		time.Sleep(s.bookingDelay)
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *Server) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[confirmer](s, w, r, "confirm appointments")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.Confirm(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) completeAppointment(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[completer](s, w, r, "complete appointments")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.Complete(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[canceler](s, w, r, "cancel appointments")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.Cancel(r.Context(), chi.URLParam(r, "id")))
}

func (s *Server) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	d, ok := capability[rescheduler](s, w, r, "reschedule appointments")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.Reschedule(r.Context(), chi.URLParam(r, "id"), req.Date, req.TimeSlot))
}

func (s *Server) annotateAppointment(w http.ResponseWriter, r *http.Request) {
	var req NotesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	d, ok := capability[annotator](s, w, r, "annotate appointments")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.Annotate(r.Context(), chi.URLParam(r, "id"), req.Notes))
}

func (s *Server) assignDoctor(w http.ResponseWriter, r *http.Request) {
	var req AssignDoctorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	d, ok := capability[assigner](s, w, r, "assign doctors")
	if !ok {
		return
	}
	s.respondAppointment(w, r)(d.AssignDoctor(r.Context(), chi.URLParam(r, "id"), req.DoctorRef))
}

func (s *Server) removeAppointment(w http.ResponseWriter, r *http.Request) {
	d, ok := capability[remover](s, w, r, "remove appointments")
	if !ok {
		return
	}
	if err := d.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeAppError(w, r, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondAppointment(w http.ResponseWriter, r *http.Request) func(appointment.Appointment, error) {
	return func(appt appointment.Appointment, err error) {
		if err != nil {
			writeAppError(w, r, s.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}
