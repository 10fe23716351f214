package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"salonbot/internal/model"

	"gopkg.in/yaml.v3"
)

// HoursConfig is the opening window of one weekday.
type HoursConfig struct {
	Open   string `yaml:"open"`  // "09:00"
	Close  string `yaml:"close"` // "22:00"
	Closed bool   `yaml:"closed"`
}

// ShiftConfig is a named sub-window of the day.
type ShiftConfig struct {
	Name  string `yaml:"name"`  // morning | afternoon | evening
	Start string `yaml:"start"` // "08:00"
	End   string `yaml:"end"`   // "12:00"
}

// HolidayConfig marks a date on which the salon is closed.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-12-25"
	Name string `yaml:"name"`
}

// ServiceConfig seeds one catalog entry.
type ServiceConfig struct {
	Name            string  `yaml:"name"`
	Description     string  `yaml:"description"`
	Price           float64 `yaml:"price"`
	DurationMinutes int     `yaml:"duration_minutes"`
	Active          *bool   `yaml:"active,omitempty"`
}

// IsActive defaults to true when the flag is omitted.
func (s ServiceConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// SalonConfig is the root of salon.yaml.
type SalonConfig struct {
	Name            string                 `yaml:"name"`
	SlotStepMinutes int                    `yaml:"slot_step_minutes"`
	BusinessHours   map[string]HoursConfig `yaml:"business_hours"` // monday..sunday
	Shifts          []ShiftConfig          `yaml:"shifts"`
	Holidays        []HolidayConfig        `yaml:"holidays"`
	Services        []ServiceConfig        `yaml:"services"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var shiftNames = map[string]bool{"morning": true, "afternoon": true, "evening": true}

// LoadSalonConfig loads and validates the salon configuration from a YAML file.
func LoadSalonConfig(path string) (*SalonConfig, error) {
	if path == "" {
		path = "configs/salon.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read salon config: %w", err)
	}

	var cfg SalonConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse salon config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate salon config: %w", err)
	}

	if cfg.SlotStepMinutes == 0 {
		cfg.SlotStepMinutes = 30
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *SalonConfig) Validate() error {
	if len(c.BusinessHours) == 0 {
		return fmt.Errorf("business_hours is required")
	}
	for day, h := range c.BusinessHours {
		if _, ok := weekdayNames[strings.ToLower(day)]; !ok {
			return fmt.Errorf("business_hours.%s: unknown weekday", day)
		}
		if h.Closed {
			continue
		}
		if err := validateRange(h.Open, h.Close, "business_hours."+day); err != nil {
			return err
		}
	}

	seen := make(map[string]bool)
	for i, s := range c.Shifts {
		name := strings.ToLower(s.Name)
		if !shiftNames[name] {
			return fmt.Errorf("shifts[%d]: unknown shift '%s', expected morning, afternoon or evening", i, s.Name)
		}
		if seen[name] {
			return fmt.Errorf("shifts[%d]: duplicate shift '%s'", i, s.Name)
		}
		seen[name] = true
		if err := validateRange(s.Start, s.End, fmt.Sprintf("shifts[%d]", i)); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	names := make(map[string]bool)
	for i, s := range c.Services {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("services[%d]: name is required", i)
		}
		key := strings.ToLower(s.Name)
		if names[key] {
			return fmt.Errorf("services[%d]: duplicate name '%s'", i, s.Name)
		}
		names[key] = true
		if s.DurationMinutes <= 0 {
			return fmt.Errorf("services[%d]: duration_minutes must be positive", i)
		}
		if s.Price < 0 {
			return fmt.Errorf("services[%d]: price cannot be negative", i)
		}
	}

	if c.SlotStepMinutes < 0 {
		return fmt.Errorf("slot_step_minutes cannot be negative")
	}

	return nil
}

func validateRange(start, end, prefix string) error {
	if start == "" || end == "" {
		return fmt.Errorf("%s: start and end are required", prefix)
	}
	s, err := time.Parse("15:04", start)
	if err != nil {
		return fmt.Errorf("%s: invalid format '%s', expected HH:MM", prefix, start)
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return fmt.Errorf("%s: invalid format '%s', expected HH:MM", prefix, end)
	}
	if !e.After(s) {
		return fmt.Errorf("%s: end must be after start", prefix)
	}
	return nil
}

// HoursFor returns the configured hours for a weekday. ok is false when nothing is configured.
func (c *SalonConfig) HoursFor(day time.Weekday) (HoursConfig, bool) {
	for name, h := range c.BusinessHours {
		if weekdayNames[strings.ToLower(name)] == day {
			return h, true
		}
	}
	return HoursConfig{}, false
}

// String returns a summary of the configuration.
func (c *SalonConfig) String() string {
	active := 0
	for _, s := range c.Services {
		if s.IsActive() {
			active++
		}
	}
	return fmt.Sprintf("SalonConfig: %d services (%d active), %d shifts, %d holidays",
		len(c.Services), active, len(c.Shifts), len(c.Holidays))
}

// CatalogServices converts the service seed into catalog entries.
func (c *SalonConfig) CatalogServices() []model.Service {
	out := make([]model.Service, 0, len(c.Services))
	for _, s := range c.Services {
		out = append(out, model.Service{
			Name:            strings.TrimSpace(s.Name),
			Description:     s.Description,
			Price:           s.Price,
			DurationMinutes: s.DurationMinutes,
			Active:          s.IsActive(),
		})
	}
	return out
}
