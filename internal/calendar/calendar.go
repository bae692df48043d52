// Package calendar implements the Brazilian national business-day rules used
// to settle DAS due dates: weekends, fixed-date national holidays and the
// Easter-relative moving holidays.
package calendar

import (
	"sort"
	"time"
)

// BRT is the America/Sao_Paulo location.
var BRT *time.Location

func init() {
	var err error
	BRT, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// No tz database available; Brazil has not observed DST since 2019.
		BRT = time.FixedZone("BRT", -3*60*60)
	}
}

// Holiday is a single national holiday.
type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

type fixedHoliday struct {
	month time.Month
	day   int
	name  string
	since int
}

var fixedHolidays = []fixedHoliday{
	{time.January, 1, "Confraternização Universal", 0},
	{time.April, 21, "Tiradentes", 0},
	{time.May, 1, "Dia do Trabalho", 0},
	{time.September, 7, "Independência do Brasil", 0},
	{time.October, 12, "Nossa Senhora Aparecida", 0},
	{time.November, 2, "Finados", 0},
	{time.November, 15, "Proclamação da República", 0},
	{time.November, 20, "Dia Nacional de Zumbi e da Consciência Negra", 2024},
	{time.December, 25, "Natal", 0},
}

// Easter returns Easter Sunday for the given year (Gregorian computus).
func Easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, BRT)
}

// Holidays returns the national holidays of a year, ordered by date.
func Holidays(year int) []Holiday {
	easter := Easter(year)
	holidays := []Holiday{
		{Date: easter.AddDate(0, 0, -47), Name: "Carnaval"},
		{Date: easter.AddDate(0, 0, -2), Name: "Sexta-feira Santa"},
		{Date: easter.AddDate(0, 0, 60), Name: "Corpus Christi"},
	}
	for _, fh := range fixedHolidays {
		if year < fh.since {
			continue
		}
		holidays = append(holidays, Holiday{
			Date: time.Date(year, fh.month, fh.day, 0, 0, 0, 0, BRT),
			Name: fh.name,
		})
	}
	sort.Slice(holidays, func(i, j int) bool {
		return holidays[i].Date.Before(holidays[j].Date)
	})
	return holidays
}

// IsHoliday reports whether t falls on a national holiday.
func IsHoliday(t time.Time) bool {
	_, ok := HolidayName(t)
	return ok
}

// HolidayName returns the name of the holiday on t, if any.
func HolidayName(t time.Time) (string, bool) {
	t = t.In(BRT)
	for _, h := range Holidays(t.Year()) {
		if h.Date.YearDay() == t.YearDay() {
			return h.Name, true
		}
	}
	return "", false
}

// IsBusinessDay reports whether t is neither a weekend nor a holiday.
func IsBusinessDay(t time.Time) bool {
	t = t.In(BRT)
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	return !IsHoliday(t)
}

// RollForward returns t itself when it is a business day, otherwise the next
// business day.
func RollForward(t time.Time) time.Time {
	d := StartOfDay(t)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// NextBusinessDay returns the first business day strictly after t.
func NextBusinessDay(t time.Time) time.Time {
	return RollForward(StartOfDay(t).AddDate(0, 0, 1))
}

// StartOfDay returns local midnight of t in BRT.
func StartOfDay(t time.Time) time.Time {
	t = t.In(BRT)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, BRT)
}

// DueDateForPeriod returns the DAS due date for a competence month: the 20th
// of the following month, rolled forward to a business day.
func DueDateForPeriod(year int, month time.Month) time.Time {
	return RollForward(time.Date(year, month+1, 20, 0, 0, 0, 0, BRT))
}
