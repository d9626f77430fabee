package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// time.go - утилиты для работы со временем в UTC
//
// Используется:
// - риск-движком для расчёта момента повторного включения торговли
// - монитором для планирования ежедневного сброса
// - health endpoint для uptime

// ClockTime - время суток (UTC) с точностью до секунды
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// TradingResumeClock - момент суток, с которого торговля снова разрешена
var TradingResumeClock = ClockTime{Hour: 0, Minute: 1}

// String возвращает время в формате HH:MM:SS
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// ParseClock разбирает "HH:MM" или "HH:MM:SS"
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return ClockTime{}, fmt.Errorf("invalid clock %q: expected HH:MM[:SS]", s)
	}

	vals := make([]int, 3)
	limits := []int{23, 59, 59}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > limits[i] {
			return ClockTime{}, fmt.Errorf("invalid clock %q", s)
		}
		vals[i] = v
	}

	return ClockTime{Hour: vals[0], Minute: vals[1], Second: vals[2]}, nil
}

// GetDayStartFrom возвращает начало дня (00:00:00 UTC) для указанного времени
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// At возвращает момент clock в тот же UTC-день, что и t
func (c ClockTime) At(t time.Time) time.Time {
	return GetDayStartFrom(t).Add(
		time.Duration(c.Hour)*time.Hour +
			time.Duration(c.Minute)*time.Minute +
			time.Duration(c.Second)*time.Second,
	)
}

// NextOccurrence возвращает ближайший момент clock строго после now
func (c ClockTime) NextOccurrence(now time.Time) time.Time {
	next := c.At(now)
	if !next.After(now.UTC()) {
		next = c.At(GetDayStartFrom(now).AddDate(0, 0, 1))
	}
	return next
}

// NextTradingResume - следующий календарный день UTC в 00:01:00.
// Всегда следующий день, даже если now раньше 00:01 текущего.
func NextTradingResume(now time.Time) time.Time {
	return TradingResumeClock.At(GetDayStartFrom(now).AddDate(0, 0, 1))
}

// UnixMicros возвращает текущее время в микросекундах Unix
func UnixMicros() int64 {
	return time.Now().UnixMicro()
}

// FormatUptime форматирует длительность как "2 hours 15 minutes"
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	days := int(d / (24 * time.Hour))
	hours := int(d/time.Hour) % 24
	minutes := int(d/time.Minute) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 || len(parts) == 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	return strings.Join(parts, " ")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}
