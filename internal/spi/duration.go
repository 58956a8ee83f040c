package spi

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseXSDuration parses the xs:duration subset used by SPI documents
// (days, hours, minutes, seconds, e.g. "PT1H30M").
func ParseXSDuration(s string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("spi: malformed duration %q", s)
	}
	var d time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		d += time.Duration(n) * 24 * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		d += time.Duration(n) * time.Hour
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		d += time.Duration(n) * time.Minute
	}
	if m[4] != "" {
		n, _ := strconv.Atoi(m[4])
		d += time.Duration(n) * time.Second
	}
	return d, nil
}

// FormatXSDuration renders a duration as xs:duration with hour, minute
// and second components.
func FormatXSDuration(d time.Duration) string {
	if d <= 0 {
		return "PT0S"
	}
	d = d.Round(time.Second)
	out := "PT"
	if h := int(d.Hours()); h > 0 {
		out += strconv.Itoa(h) + "H"
		d -= time.Duration(h) * time.Hour
	}
	if m := int(d.Minutes()); m > 0 {
		out += strconv.Itoa(m) + "M"
		d -= time.Duration(m) * time.Minute
	}
	if s := int(d.Seconds()); s > 0 || out == "PT" {
		out += strconv.Itoa(s) + "S"
	}
	return out
}
