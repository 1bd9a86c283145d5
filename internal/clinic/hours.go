// Package clinic holds clinic-wide configuration: opening hours by weekday,
// with optional per-day overrides kept in redis so admins can adjust them
// without a deploy.
package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smileclinic/booking-bot/pkg/logging"
)

const (
	defaultOpenMinute  = 9 * 60
	defaultCloseMinute = 18 * 60

	hoursKey = "clinic:hours"
)

// DayHours is one weekday's opening window in minutes since midnight.
type DayHours struct {
	Open     bool `json:"open"`
	StartMin int  `json:"start_min"`
	EndMin   int  `json:"end_min"`
}

// Hours answers "when is the clinic open on weekday X". Resolution order is
// redis override, static config, built-in default (Mon-Sat 09:00-18:00,
// Sunday closed). Lookup failures fall back rather than close the clinic.
type Hours struct {
	redis  *redis.Client
	static map[time.Weekday]DayHours
	log    *logging.Logger
}

// NewHours creates an Hours source. redisClient may be nil (no overrides);
// hoursJSON may be empty (defaults only).
func NewHours(redisClient *redis.Client, hoursJSON string, log *logging.Logger) (*Hours, error) {
	if log == nil {
		log = logging.Default()
	}
	h := &Hours{
		redis:  redisClient,
		static: defaultHours(),
		log:    log.Named("clinic"),
	}
	if hoursJSON != "" {
		overrides := map[string]string{}
		if err := json.Unmarshal([]byte(hoursJSON), &overrides); err != nil {
			return nil, fmt.Errorf("clinic: parse hours config: %w", err)
		}
		for name, spec := range overrides {
			wd, err := parseWeekday(name)
			if err != nil {
				return nil, err
			}
			day, err := ParseDayHours(spec)
			if err != nil {
				return nil, fmt.Errorf("clinic: hours for %s: %w", name, err)
			}
			h.static[wd] = day
		}
	}
	return h, nil
}

// DayWindow implements the booking hours source. It never returns an error:
// when redis is unreachable the static table answers.
func (h *Hours) DayWindow(ctx context.Context, weekday time.Weekday) (startMin, endMin int, open bool) {
	if h.redis != nil {
		spec, err := h.redis.HGet(ctx, hoursKey, strings.ToLower(weekday.String())).Result()
		switch {
		case err == redis.Nil:
		case err != nil:
			h.log.Warn("hours override lookup failed, using static hours",
				"weekday", weekday.String(), "error", err)
		default:
			day, perr := ParseDayHours(spec)
			if perr != nil {
				h.log.Warn("malformed hours override ignored",
					"weekday", weekday.String(), "value", spec, "error", perr)
			} else {
				return day.StartMin, day.EndMin, day.Open
			}
		}
	}
	day := h.static[weekday]
	return day.StartMin, day.EndMin, day.Open
}

// SetOverride stores a per-day override ("HH:MM-HH:MM" or "closed").
func (h *Hours) SetOverride(ctx context.Context, weekday time.Weekday, spec string) error {
	if h.redis == nil {
		return fmt.Errorf("clinic: overrides require redis")
	}
	if _, err := ParseDayHours(spec); err != nil {
		return err
	}
	if err := h.redis.HSet(ctx, hoursKey, strings.ToLower(weekday.String()), spec).Err(); err != nil {
		return fmt.Errorf("clinic: set hours override: %w", err)
	}
	return nil
}

// ParseDayHours parses "HH:MM-HH:MM" (an en dash is tolerated) or "closed".
func ParseDayHours(spec string) (DayHours, error) {
	spec = strings.TrimSpace(spec)
	if strings.EqualFold(spec, "closed") {
		return DayHours{}, nil
	}
	norm := strings.ReplaceAll(spec, "–", "-")
	parts := strings.SplitN(norm, "-", 2)
	if len(parts) != 2 {
		return DayHours{}, fmt.Errorf("clinic: malformed hours %q", spec)
	}
	start, err := parseMinutes(parts[0])
	if err != nil {
		return DayHours{}, err
	}
	end, err := parseMinutes(parts[1])
	if err != nil {
		return DayHours{}, err
	}
	if end <= start {
		return DayHours{}, fmt.Errorf("clinic: hours %q end before start", spec)
	}
	return DayHours{Open: true, StartMin: start, EndMin: end}, nil
}

func parseMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("clinic: malformed time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(name, wd.String()) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("clinic: unknown weekday %q", name)
}

func defaultHours() map[time.Weekday]DayHours {
	hours := make(map[time.Weekday]DayHours, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if wd == time.Sunday {
			hours[wd] = DayHours{}
			continue
		}
		hours[wd] = DayHours{Open: true, StartMin: defaultOpenMinute, EndMin: defaultCloseMinute}
	}
	return hours
}
