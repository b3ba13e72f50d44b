package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"berserk/internal/clock"
	"berserk/internal/config"
	"berserk/internal/models"
)

// AvailabilityService produces mock slot availability until a real calendar
// backs it.
type AvailabilityService struct {
	cfg    config.AvailabilityConfig
	clock  clock.Clock
	random func() float64
}

// NewAvailabilityService uses math/rand/v2 when random is nil.
func NewAvailabilityService(cfg config.AvailabilityConfig, clk clock.Clock, random func() float64) *AvailabilityService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if random == nil {
		random = rand.Float64
	}
	if cfg.FirstHour == 0 && cfg.LastHour == 0 {
		cfg.FirstHour, cfg.LastHour = 10, 17
	}
	if cfg.CacheTTLSeconds <= 0 {
		cfg.CacheTTLSeconds = models.DefaultAvailabilityTTLSeconds
	}
	return &AvailabilityService{cfg: cfg, clock: clk, random: random}
}

// CacheControl is the header value sent with availability responses.
func (s *AvailabilityService) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d", s.cfg.CacheTTLSeconds)
}

// Month returns slots for days 2 through 31 of month (YYYY-MM, default the
// current month). Days past the month's end roll into the next one.
func (s *AvailabilityService) Month(artist, month string) (*models.Availability, error) {
	first, err := s.parseMonth(month)
	if err != nil {
		return nil, err
	}

	slots := make(map[string][]models.Slot)
	for day := 2; day < 32; day++ {
		date := time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}

		daySlots := make([]models.Slot, 0, s.cfg.LastHour-s.cfg.FirstHour+1)
		for hour := s.cfg.FirstHour; hour <= s.cfg.LastHour; hour++ {
			daySlots = append(daySlots, models.Slot{
				Time:      hour12(hour),
				Time24:    fmt.Sprintf("%02d:00", hour),
				Available: s.random() < s.cfg.Probability,
			})
		}
		slots[date.Format("2006-01-02")] = daySlots
	}

	return &models.Availability{
		Success: true,
		Artist:  artist,
		Month:   first.Format("2006-01"),
		Slots:   slots,
	}, nil
}

func (s *AvailabilityService) parseMonth(month string) (time.Time, error) {
	month = strings.TrimSpace(month)
	if month == "" {
		now := s.clock.Now()
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, validationf("Invalid month: %s (expected YYYY-MM)", month)
	}
	return t, nil
}

// hour12 renders 14 as "2:00 PM".
func hour12(hour int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h := hour
	if h > 12 {
		h -= 12
	}
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:00 %s", h, period)
}
