package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bookcore/internal/model"
	"bookcore/internal/policy"
	"bookcore/internal/schedule"
)

// ResourceConfig represents a single staff member or rental product.
type ResourceConfig struct {
	BusinessID   int64          `yaml:"business_id"`
	Name         string         `yaml:"name"`
	Kind         string         `yaml:"kind"`
	Capacity     int            `yaml:"capacity"`
	IsActive     bool           `yaml:"is_active"`
	Availability map[string]any `yaml:"availability,omitempty"`
}

// PolicyConfig is the booking policy of one business.
type PolicyConfig struct {
	BusinessID        int64 `yaml:"business_id"`
	BufferTimeMins    int   `yaml:"buffer_time_mins"`
	MinDurationMins   *int  `yaml:"min_duration_mins,omitempty"`
	MaxDurationMins   *int  `yaml:"max_duration_mins,omitempty"`
	MinAdvanceMins    int   `yaml:"min_advance_mins"`
	MaxAdvanceDays    *int  `yaml:"max_advance_days,omitempty"`
	MaxDailyBookings  *int  `yaml:"max_daily_bookings,omitempty"`
	UseFixedIntervals bool  `yaml:"use_fixed_intervals"`
	IntervalMins      *int  `yaml:"interval_mins,omitempty"`
}

// HolidayConfig represents a holiday configuration.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// DefaultsConfig represents global default settings.
type DefaultsConfig struct {
	Availability map[string]any `yaml:"availability"`
	DaysOff      []int          `yaml:"days_off"` // 1=Mon, 7=Sun
}

// ResourcesConfig is the root configuration for resources.yaml.
type ResourcesConfig struct {
	Resources []ResourceConfig `yaml:"resources"`
	Policies  []PolicyConfig   `yaml:"policies"`
	Defaults  DefaultsConfig   `yaml:"defaults"`
	Holidays  []HolidayConfig  `yaml:"holidays"`
}

// LoadResourcesConfig loads and validates resources configuration from YAML file.
func LoadResourcesConfig(path string) (*ResourcesConfig, error) {
	if path == "" {
		path = "configs/resources.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources config: %w", err)
	}

	return ParseResourcesConfig(data)
}

// ParseResourcesConfig decodes, validates and applies defaults.
func ParseResourcesConfig(data []byte) (*ResourcesConfig, error) {
	var cfg ResourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse resources config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate resources config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ResourcesConfig) Validate() error {
	if len(c.Resources) == 0 {
		return fmt.Errorf("no resources defined")
	}

	type key struct {
		business int64
		name     string
	}
	names := make(map[key]bool)

	for i, res := range c.Resources {
		if res.BusinessID <= 0 {
			return fmt.Errorf("resource[%d]: business_id must be positive, got %d", i, res.BusinessID)
		}
		if res.Name == "" {
			return fmt.Errorf("resource[%d]: name is required", i)
		}
		k := key{res.BusinessID, res.Name}
		if names[k] {
			return fmt.Errorf("resource[%d]: duplicate name '%s' in business %d", i, res.Name, res.BusinessID)
		}
		names[k] = true

		if !model.ResourceKind(res.Kind).Valid() {
			return fmt.Errorf("resource[%d]: kind must be %q or %q, got %q", i, model.ResourceStaff, model.ResourceRentalProduct, res.Kind)
		}
		if res.Capacity < 0 {
			return fmt.Errorf("resource[%d]: capacity cannot be negative", i)
		}

		if res.Availability != nil {
			if _, errs := schedule.Parse(res.Availability); !errs.Empty() {
				return fmt.Errorf("resource[%d].availability: %s", i, strings.Join(errs.On(schedule.Field), "; "))
			}
		}
	}

	if c.Defaults.Availability != nil {
		if _, errs := schedule.Parse(c.Defaults.Availability); !errs.Empty() {
			return fmt.Errorf("defaults.availability: %s", strings.Join(errs.On(schedule.Field), "; "))
		}
	}

	businesses := make(map[int64]bool)
	for i, p := range c.Policies {
		if p.BusinessID <= 0 {
			return fmt.Errorf("policy[%d]: business_id must be positive, got %d", i, p.BusinessID)
		}
		if businesses[p.BusinessID] {
			return fmt.Errorf("policy[%d]: duplicate business_id %d", i, p.BusinessID)
		}
		businesses[p.BusinessID] = true
		if errs := policy.Validate(p.BookingPolicy()); !errs.Empty() {
			return fmt.Errorf("policy[%d]: %s", i, errs.Error())
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := schedule.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	for i, d := range c.Defaults.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("defaults.days_off[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}

	return nil
}

// applyDefaults applies default values to resources without explicit configuration.
func (c *ResourcesConfig) applyDefaults() {
	for i := range c.Resources {
		if c.Resources[i].Availability == nil && c.Defaults.Availability != nil {
			c.Resources[i].Availability = c.Defaults.Availability
		}

		if c.Resources[i].Capacity == 0 || c.Resources[i].Kind == string(model.ResourceStaff) {
			c.Resources[i].Capacity = 1
		}
	}
}

// normalize rewrites YAML maps with non-string keys (dates decode as
// timestamps) into the map[string]any shape the calendar parser reads.
func (c *ResourcesConfig) normalize() {
	for i := range c.Resources {
		if c.Resources[i].Availability != nil {
			c.Resources[i].Availability = stringKeys(c.Resources[i].Availability).(map[string]any)
		}
	}
	if c.Defaults.Availability != nil {
		c.Defaults.Availability = stringKeys(c.Defaults.Availability).(map[string]any)
	}
}

func stringKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = stringKeys(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[keyString(k)] = stringKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stringKeys(val)
		}
		return out
	}
	return v
}

func keyString(k any) string {
	if ts, ok := k.(time.Time); ok {
		return ts.Format("2006-01-02")
	}
	return fmt.Sprint(k)
}

// Calendar builds the effective calendar of res: its availability with the
// default days off closed and every holiday added as a closed exception. An
// explicit exception for a holiday date wins. A resource without availability
// stays unconfigured.
func (c *ResourcesConfig) Calendar(res *ResourceConfig) *schedule.Calendar {
	if res.Availability == nil {
		return schedule.NewCalendar()
	}
	cal, _ := schedule.Parse(res.Availability)

	for _, d := range c.Defaults.DaysOff {
		cal.SetWeekly(time.Weekday(d % 7))
	}
	for _, h := range c.Holidays {
		d, err := schedule.ParseDate(h.Date)
		if err != nil || cal.HasException(d) {
			continue
		}
		cal.SetException(d)
	}
	return cal
}

// BookingPolicy converts the YAML entry to a policy.
func (p PolicyConfig) BookingPolicy() *policy.BookingPolicy {
	return &policy.BookingPolicy{
		BusinessID:        model.BusinessID(p.BusinessID),
		BufferTimeMins:    p.BufferTimeMins,
		MinDurationMins:   p.MinDurationMins,
		MaxDurationMins:   p.MaxDurationMins,
		MinAdvanceMins:    p.MinAdvanceMins,
		MaxAdvanceDays:    p.MaxAdvanceDays,
		MaxDailyBookings:  p.MaxDailyBookings,
		UseFixedIntervals: p.UseFixedIntervals,
		IntervalMins:      p.IntervalMins,
	}
}

// GetResourceByName returns the resource config of a business by name.
func (c *ResourcesConfig) GetResourceByName(business int64, name string) *ResourceConfig {
	for i := range c.Resources {
		if c.Resources[i].BusinessID == business && c.Resources[i].Name == name {
			return &c.Resources[i]
		}
	}
	return nil
}

// IsHoliday checks if a date is a holiday.
func (c *ResourcesConfig) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format("2006-01-02")
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the configuration.
func (c *ResourcesConfig) String() string {
	active := 0
	for _, res := range c.Resources {
		if res.IsActive {
			active++
		}
	}
	return fmt.Sprintf("ResourcesConfig: %d resources (%d active), %d policies, %d holidays",
		len(c.Resources), active, len(c.Policies), len(c.Holidays))
}
