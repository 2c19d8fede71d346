package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

// normalizeCron accepts 5, 6, or 7 field cron expressions and normalizes them
// to gronx's native 6-field (seconds-first) form: a bare 5-field expression
// gets a leading "0" for seconds; a 6-field expression is taken as already
// seconds-first and returned unchanged; a 7-field expression has its
// trailing year field stripped since gronx has no year support.
func normalizeCron(expr string) (string, error) {
	fields := strings.Fields(expr)
	switch len(fields) {
	case 5:
		return "0 " + expr, nil
	case 6:
		return expr, nil
	case 7:
		return strings.Join(fields[:6], " "), nil
	default:
		return "", fmt.Errorf("cron expression must have 5, 6, or 7 fields, got %d", len(fields))
	}
}

// nextRun computes the next_run for a task per its schedule_type/value, in
// UTC. A nil, nil result for a "once" schedule means it will not re-fire.
func nextRun(scheduleType store.ScheduleType, value string, now time.Time) (*time.Time, error) {
	switch scheduleType {
	case store.ScheduleCron:
		normalized, err := normalizeCron(value)
		if err != nil {
			return nil, rterr.New(rterr.Config, "normalize cron", err)
		}
		next, err := gronx.NextTick(normalized, false)
		if err != nil {
			return nil, rterr.New(rterr.Config, "compute next cron tick", err)
		}
		next = next.UTC()
		return &next, nil

	case store.ScheduleInterval:
		d, err := parseInterval(value)
		if err != nil {
			return nil, rterr.New(rterr.Config, "parse interval", err)
		}
		next := now.Add(d)
		return &next, nil

	case store.ScheduleOnce:
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, rterr.New(rterr.Config, "parse once timestamp", err)
		}
		t = t.UTC()
		if t.After(now) {
			return &t, nil
		}
		return nil, nil

	default:
		return nil, rterr.New(rterr.Config, "schedule type", fmt.Errorf("unknown schedule type %q", scheduleType))
	}
}

// parseInterval accepts "<n>s", "<n>m", "<n>h", "<n>d", or a bare integer of
// seconds.
func parseInterval(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty interval")
	}

	last := value[len(value)-1]
	var unit time.Duration
	numPart := value
	switch last {
	case 's':
		unit = time.Second
		numPart = value[:len(value)-1]
	case 'm':
		unit = time.Minute
		numPart = value[:len(value)-1]
	case 'h':
		unit = time.Hour
		numPart = value[:len(value)-1]
	case 'd':
		unit = 24 * time.Hour
		numPart = value[:len(value)-1]
	default:
		unit = time.Second
	}

	n, err := strconv.Atoi(numPart)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", value, err)
	}
	return time.Duration(n) * unit, nil
}
