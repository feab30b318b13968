package predictor

import (
	"sort"
	"time"
)

// NextGoodHour returns the next timestamp whose hour is in goodHours and is
// strictly after now's hour. If no good hour remains today, it rolls to the
// first good hour tomorrow. Pure function of (now, goodHours); minutes and
// seconds are zeroed.
func NextGoodHour(now time.Time, goodHours []int) time.Time {
	if len(goodHours) == 0 {
		return now.Add(time.Hour).Truncate(time.Hour)
	}

	hours := append([]int(nil), goodHours...)
	sort.Ints(hours)

	for _, h := range hours {
		if h > now.Hour() {
			return time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
		}
	}

	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hours[0], 0, 0, 0, now.Location())
}
