package airquality

// Season maps a month to its southern-hemisphere meteorological season.
func Season(month int) string {
	switch month {
	case 12, 1, 2:
		return "summer"
	case 3, 4, 5:
		return "autumn"
	case 6, 7, 8:
		return "winter"
	default:
		return "spring"
	}
}
