package plantsim

import "time"

// IsDark reports whether the given minute, counted from DefaultReferenceStart,
// falls at night. Hours 6 to 18 inclusive are day.
func IsDark(elapsedMinutes int) bool {
	return isDarkFrom(DefaultReferenceStart, elapsedMinutes)
}

// IsDark is the day/night predicate anchored at the configured reference start.
func (c Config) IsDark(elapsedMinutes int) bool {
	return isDarkFrom(c.ReferenceStart, elapsedMinutes)
}

const minutesPerDay = 24 * 60

func isDarkFrom(start time.Time, elapsedMinutes int) bool {
	// only the time of day matters; reducing first keeps the Duration from overflowing
	m := elapsedMinutes % minutesPerDay
	if m < 0 {
		m += minutesPerDay
	}
	hour := start.Add(time.Duration(m) * time.Minute).Hour()
	return hour < 6 || hour > 18
}

// lightLevel picks the ambient light for a minute.
func (c Config) lightLevel(elapsedMinutes int, led bool) float64 {
	switch dark := c.IsDark(elapsedMinutes); {
	case dark && led:
		return c.NightLEDLight
	case dark:
		return c.NightLight
	case led:
		return c.DayLEDLight
	default:
		return c.DayLight
	}
}
