// Package wizard drives the five-step booking flow: it collects a draft,
// validates each step, persists work in progress and submits the finished
// request.
package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"berserk/internal/clock"
	"berserk/internal/domain"
	"berserk/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	StepSelection = iota + 1
	StepContact
	StepAppointment
	StepDesign
	StepReview

	TotalSteps = StepReview
)

const (
	DefaultDebounce = 500 * time.Millisecond
	saveTimeout     = 5 * time.Second
)

var ErrLastStep = errors.New("already on the review step")

type Options struct {
	Debounce time.Duration
	Clock    clock.Clock
	Logger   *zerolog.Logger
}

// Session is one customer's pass through the wizard. It is safe for
// concurrent use.
type Session struct {
	mu         sync.Mutex
	id         string
	step       int
	draft      models.BookingDraft
	store      domain.DraftStore
	timer      *time.Timer
	debounce   time.Duration
	submitting bool
	clock      clock.Clock
	validate   *validator.Validate
	logger     *zerolog.Logger
	saveMu     sync.Mutex
	saves      sync.WaitGroup
}

// NewSession starts an empty draft. store may be nil.
func NewSession(id string, store domain.DraftStore, opts Options) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	return &Session{
		id:       id,
		step:     StepSelection,
		draft:    make(models.BookingDraft),
		store:    store,
		debounce: opts.Debounce,
		clock:    opts.Clock,
		validate: newValidator(),
		logger:   opts.Logger,
	}
}

// Resume loads a previously saved draft. A missing draft is not an error.
func (s *Session) Resume(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	data, err := s.store.LoadDraft(ctx, s.id)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return s.Restore(data)
}

func (s *Session) ID() string { return s.id }

func (s *Session) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Draft returns a copy of the collected values.
func (s *Session) Draft() models.BookingDraft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyDraft()
}

func (s *Session) Get(field string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft[field]
}

// Set records a typed value. Saving is debounced so a burst of keystrokes
// results in one write.
func (s *Session) Set(field, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft[field] = value
	if s.store == nil {
		return
	}
	s.stopTimer()
	s.saves.Add(1)
	var t *time.Timer
	t = time.AfterFunc(s.debounce, func() {
		defer s.saves.Done()
		s.mu.Lock()
		if s.timer == t {
			s.timer = nil
		}
		s.mu.Unlock()
		s.persist()
	})
	s.timer = t
}

func (s *Session) SelectConsultation(kind string) {
	s.setNow(map[string]string{"consultationType": kind})
}

func (s *Session) SelectArtist(id, name string) {
	s.setNow(map[string]string{"artist": id, "artistName": name})
}

func (s *Session) SetAppointment(date, clockTime string) {
	s.setNow(map[string]string{"appointmentDate": date, "appointmentTime": clockTime})
}

// setNow records selections and saves without waiting for the debounce.
func (s *Session) setNow(values map[string]string) {
	s.mu.Lock()
	for k, v := range values {
		s.draft[k] = v
	}
	s.stopTimer()
	s.mu.Unlock()
	s.save()
}

// Next advances when the current step validates.
func (s *Session) Next() error {
	s.mu.Lock()
	if s.step == TotalSteps {
		s.mu.Unlock()
		return ErrLastStep
	}
	if errs := s.validateStep(s.step); len(errs) > 0 {
		s.mu.Unlock()
		return errs
	}
	s.step++
	s.stopTimer()
	s.mu.Unlock()
	s.save()
	return nil
}

// Back moves one step back without validating.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.step > StepSelection {
		s.step--
	}
}

// Serialize encodes the draft for persistence.
func (s *Session) Serialize() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Marshal(s.draft)
}

// Restore replaces the draft with previously serialized data.
func (s *Session) Restore(data []byte) error {
	var draft models.BookingDraft
	if err := json.Unmarshal(data, &draft); err != nil {
		return fmt.Errorf("decode draft: %w", err)
	}
	if draft == nil {
		draft = make(models.BookingDraft)
	}
	s.mu.Lock()
	s.draft = draft
	s.mu.Unlock()
	return nil
}

// Reset clears the draft, the step and the saved copy.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	s.draft = make(models.BookingDraft)
	s.step = StepSelection
	s.stopTimer()
	s.mu.Unlock()
	s.clearStored(ctx)
}

// Flush runs a pending debounced save now and waits for every save in flight.
func (s *Session) Flush() {
	s.mu.Lock()
	pending := s.timer != nil
	s.stopTimer()
	s.mu.Unlock()
	if pending {
		s.save()
	}
	s.saves.Wait()
}

// Summary renders the review step with placeholders for blanks.
func (s *Session) Summary() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	or := func(field, fallback string) string {
		if v := s.draft[field]; v != "" {
			return v
		}
		return fallback
	}
	return map[string]string{
		"artist":          or("artistName", "Not selected"),
		"firstName":       s.draft["firstName"],
		"lastName":        s.draft["lastName"],
		"email":           s.draft["email"],
		"phone":           s.draft["phone"],
		"placement":       or("placement", "Not specified"),
		"size":            or("size", "Not specified"),
		"description":     s.draft["description"],
		"appointmentDate": or("appointmentDate", "Not selected"),
		"appointmentTime": or("appointmentTime", "Not selected"),
		"budget":          or("budget", "To be discussed"),
		"price":           PriceEstimate(s.draft["size"]),
	}
}

// caller holds mu.
func (s *Session) stopTimer() {
	if s.timer != nil && s.timer.Stop() {
		s.saves.Done()
	}
	s.timer = nil
}

// caller holds mu.
func (s *Session) copyDraft() models.BookingDraft {
	cp := make(models.BookingDraft, len(s.draft))
	for k, v := range s.draft {
		cp[k] = v
	}
	return cp
}

// save writes the draft in the background. Failures never reach the user.
func (s *Session) save() {
	if s.store == nil {
		return
	}
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		s.persist()
	}()
}

// persist encodes the draft at write time, so the last write always carries
// the newest state.
func (s *Session) persist() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	data, err := s.Serialize()
	if err != nil {
		s.logger.Debug().Err(err).Str("session_id", s.id).Msg("Encode draft failed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.store.SaveDraft(ctx, s.id, data); err != nil {
		s.logger.Debug().Err(err).Str("session_id", s.id).Msg("Save draft failed")
	}
}

func (s *Session) clearStored(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.saves.Wait()
	if err := s.store.ClearDraft(ctx, s.id); err != nil {
		s.logger.Debug().Err(err).Str("session_id", s.id).Msg("Clear draft failed")
	}
}
