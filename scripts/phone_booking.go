package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"berserk/internal/models"
	"berserk/internal/repository"
	"berserk/internal/wizard"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Records a booking taken over the phone by walking the same wizard the
// website uses, then prints the checkout link to send to the customer.

type rosterFile struct {
	Artists []models.Artist `yaml:"artists"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	var (
		endpoint     = flag.String("endpoint", "http://localhost:8080/api/create-booking", "create-booking endpoint")
		rosterPath   = flag.String("config", "configs/config.yaml", "config with the artist roster")
		consultation = flag.String("consultation", models.ConsultationPhone, "phone or in-person")
		artist       = flag.String("artist", "", "artist id")
		firstName    = flag.String("first", "", "customer first name")
		lastName     = flag.String("last", "", "customer last name")
		email        = flag.String("email", "", "customer email")
		phone        = flag.String("phone", "", "customer phone")
		date         = flag.String("date", "", "appointment date, YYYY-MM-DD")
		clockTime    = flag.String("time", "", "appointment time, e.g. 2:00 PM")
		placement    = flag.String("placement", "", "tattoo placement")
		size         = flag.String("size", "", "small, medium, large, xlarge or sleeve")
		description  = flag.String("description", "", "design notes")
	)
	flag.Parse()

	artistName, err := lookupArtist(*rosterPath, *artist)
	if err != nil {
		logger.Warn().Err(err).Str("artist", *artist).Msg("artist name not resolved, server will fall back")
	}

	session := wizard.NewSession(uuid.NewString(), repository.NewMemoryDraftStore(), wizard.Options{Logger: &logger})

	session.SelectConsultation(*consultation)
	session.SelectArtist(*artist, artistName)
	if err := advance(session); err != nil {
		return err
	}

	session.Set("firstName", *firstName)
	session.Set("lastName", *lastName)
	session.Set("email", *email)
	session.Set("phone", *phone)
	if err := advance(session); err != nil {
		return err
	}

	session.SetAppointment(*date, *clockTime)
	if err := advance(session); err != nil {
		return err
	}

	session.Set("placement", *placement)
	session.Set("size", *size)
	session.Set("description", *description)
	if err := advance(session); err != nil {
		return err
	}

	summary := session.Summary()
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-16s %s\n", k+":", summary[k])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	url, err := session.Submit(ctx, wizard.NewHTTPSubmitter(*endpoint, &http.Client{Timeout: 20 * time.Second}))
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Println("Checkout link:", url)
	return nil
}

// advance flushes pending input and moves to the next step, reporting
// field errors the way the wizard shows them.
func advance(s *wizard.Session) error {
	s.Flush()
	err := s.Next()
	var fieldErrs wizard.FieldErrors
	if errors.As(err, &fieldErrs) {
		for field, msg := range fieldErrs {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", field, msg)
		}
		return fmt.Errorf("step %d is incomplete", s.Step())
	}
	return err
}

func lookupArtist(path, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read roster: %w", err)
	}
	var roster rosterFile
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return "", fmt.Errorf("parse roster: %w", err)
	}
	for _, a := range roster.Artists {
		if a.ID == id {
			return a.Name, nil
		}
	}
	return "", fmt.Errorf("artist %q not in roster", id)
}
