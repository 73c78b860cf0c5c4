package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"support-router/internal/domain"
)

// Fixture is the YAML seed format for both stores.
type Fixture struct {
	Experiences []FixtureExperience `yaml:"experiences"`
	Users       []FixtureUser       `yaml:"users"`
	Articles    []domain.Article    `yaml:"articles"`
}

type FixtureExperience struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

type FixtureUser struct {
	ID           string               `yaml:"id"`
	Email        string               `yaml:"email"`
	FullName     string               `yaml:"full_name"`
	Blocked      bool                 `yaml:"blocked"`
	Subscription *FixtureSubscription `yaml:"subscription"`
	Reservations []FixtureReservation `yaml:"reservations"`
}

type FixtureSubscription struct {
	ID           string `yaml:"id"`
	Status       string `yaml:"status"`
	Tier         string `yaml:"tier"`
	MonthlyQuota int    `yaml:"monthly_quota"`
}

type FixtureReservation struct {
	ID           string `yaml:"id"`
	ExperienceID string `yaml:"experience_id"`
	Status       string `yaml:"status"`
}

// LoadFixture reads a YAML seed file.
func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("store: read fixture: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("store: parse fixture %s: %w", path, err)
	}
	return f, nil
}

// Seed loads experiences, users, subscriptions and reservations.
func (s *CustomerStore) Seed(ctx context.Context, f Fixture) error {
	for _, e := range f.Experiences {
		if err := s.InsertExperience(ctx, domain.Experience{ExperienceID: e.ID, Title: e.Title}); err != nil {
			return err
		}
	}
	for _, u := range f.Users {
		if err := s.InsertUser(ctx, domain.User{UserID: u.ID, Email: u.Email, FullName: u.FullName, IsBlocked: u.Blocked}); err != nil {
			return err
		}
		if sub := u.Subscription; sub != nil {
			status := domain.SubscriptionStatus(sub.Status)
			if status == "" {
				status = domain.SubscriptionActive
			}
			var ended *time.Time
			if status == domain.SubscriptionCancelled {
				ts := now()
				ended = &ts
			}
			if err := s.InsertSubscription(ctx, domain.Subscription{
				SubscriptionID: sub.ID,
				UserID:         u.ID,
				Status:         status,
				Tier:           sub.Tier,
				MonthlyQuota:   sub.MonthlyQuota,
				EndedAt:        ended,
			}); err != nil {
				return err
			}
		}
		for _, r := range u.Reservations {
			status := domain.ReservationStatus(r.Status)
			if status == "" {
				status = domain.ReservationReserved
			}
			if err := s.InsertReservation(ctx, domain.Reservation{
				ReservationID: r.ID,
				UserID:        u.ID,
				ExperienceID:  r.ExperienceID,
				Status:        status,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// SeedArticles upserts the fixture's knowledge articles.
func (s *SupportStore) SeedArticles(ctx context.Context, f Fixture) (int, error) {
	for i, a := range f.Articles {
		if err := s.UpsertArticle(ctx, a); err != nil {
			return i, err
		}
	}
	return len(f.Articles), nil
}
