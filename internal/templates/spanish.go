package templates

import (
	"fmt"
	"time"
)

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// SpanishDate renders t as "5 de marzo de 2024 a las 14:30". This exact shape
// is what every {appointmentDate} placeholder receives.
func SpanishDate(t time.Time) string {
	return fmt.Sprintf("%d de %s de %d a las %02d:%02d",
		t.Day(), spanishMonths[t.Month()-1], t.Year(), t.Hour(), t.Minute())
}

// SpanishDateWithTimeText renders the date part in long Spanish form and keeps
// the raw time text as supplied, e.g. "5 de marzo de 2024 a las 14:30hs".
// Dispatch uses it for the "<date> at <time>hs" attachment format.
func SpanishDateWithTimeText(date time.Time, timeText string) string {
	return fmt.Sprintf("%d de %s de %d a las %s",
		date.Day(), spanishMonths[date.Month()-1], date.Year(), timeText)
}
