package wizard

import (
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[\d\s\-\+\(\)]{8,}$`)
)

// Messages shown next to invalid fields.
const (
	MsgRequired     = "This field is required"
	MsgEmail        = "Please enter a valid email address"
	MsgPhone        = "Please enter a valid phone number"
	MsgConsultation = "Please select a consultation type to continue"
	MsgArtist       = "Please select an artist to continue"
	MsgAppointment  = "Please select a date and time for your consultation"
)

// FieldErrors maps a field name to the message shown for it.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return strings.Join(parts, "; ")
}

type fieldRule struct {
	field string
	tag   string
	msg   string
}

var stepRules = map[int][]fieldRule{
	StepSelection: {
		{"consultationType", "required", MsgConsultation},
		{"artist", "required", MsgArtist},
	},
	StepContact: {
		{"firstName", "required", MsgRequired},
		{"lastName", "required", MsgRequired},
		{"email", "required", MsgRequired},
		{"email", "booking_email", MsgEmail},
		{"phone", "required", MsgRequired},
		{"phone", "booking_phone", MsgPhone},
	},
	StepAppointment: {
		{"appointmentDate", "required", MsgAppointment},
		{"appointmentTime", "required", MsgAppointment},
	},
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Format checks only apply to non-empty values; emptiness is the required rule's job.
	_ = v.RegisterValidation("booking_email", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || emailPattern.MatchString(s)
	})
	_ = v.RegisterValidation("booking_phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || phonePattern.MatchString(s)
	})
	return v
}

// ValidateStep checks step n against the current draft. Steps without
// required fields always pass.
func (s *Session) ValidateStep(n int) FieldErrors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validateStep(n)
}

// caller holds mu.
func (s *Session) validateStep(n int) FieldErrors {
	var errs FieldErrors
	for _, rule := range stepRules[n] {
		if _, seen := errs[rule.field]; seen {
			continue
		}
		value := strings.TrimSpace(s.draft[rule.field])
		if err := s.validate.Var(value, rule.tag); err != nil {
			if errs == nil {
				errs = make(FieldErrors)
			}
			errs[rule.field] = rule.msg
		}
	}
	return errs
}

// caller holds mu.
func (s *Session) validateAll() FieldErrors {
	var all FieldErrors
	for step := StepSelection; step <= TotalSteps; step++ {
		for f, msg := range s.validateStep(step) {
			if all == nil {
				all = make(FieldErrors)
			}
			all[f] = msg
		}
	}
	return all
}
