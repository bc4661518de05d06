package appointment

import "fmt"

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
	StatusCancelled: {},
	StatusCompleted: {},
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// authorizeTransition: either participant may cancel; only the doctor may
// confirm or complete.
func authorizeTransition(caller Caller, a *Appointment, to AppointmentStatus) error {
	switch to {
	case StatusCancelled:
		if a.IsParticipant(caller.ID) {
			return nil
		}
		return permissionDenied("only the patient or the doctor of this appointment may cancel it")
	case StatusConfirmed, StatusCompleted:
		if caller.ID == a.DoctorID {
			return nil
		}
		return permissionDenied("only the doctor of this appointment may mark it %s", to)
	default:
		return invalidArgument("unsupported target status %q", to)
	}
}

func checkTransition(a *Appointment, to AppointmentStatus) error {
	if CanTransition(a.Status, to) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, a.Status, to)
}
