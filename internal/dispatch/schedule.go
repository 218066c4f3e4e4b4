package dispatch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// attachmentSeparator splits the appointment date from its time in the
// uploaded list, e.g. "2024-03-05 at 14:30hs".
const attachmentSeparator = " at "

var attachmentDateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006"}

// ParseAttachment splits "<date> at <time>hs" into the appointment timestamp
// and the raw time text used for rendering.
func ParseAttachment(attachment string) (time.Time, string, error) {
	parts := strings.SplitN(attachment, attachmentSeparator, 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("dispatch: attachment %q missing %q separator", attachment, attachmentSeparator)
	}
	datePart := strings.TrimSpace(parts[0])
	timeText := strings.TrimSpace(parts[1])

	var date time.Time
	var err error
	for _, layout := range attachmentDateLayouts {
		date, err = time.Parse(layout, datePart)
		if err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, "", fmt.Errorf("dispatch: unparseable date %q: %w", datePart, err)
	}

	clock := strings.TrimSuffix(timeText, "hs")
	hm := strings.SplitN(clock, ":", 2)
	if len(hm) != 2 {
		return time.Time{}, "", fmt.Errorf("dispatch: unparseable time %q", timeText)
	}
	parsed, err := time.Parse("15:04", strings.TrimSpace(hm[0])+":"+strings.TrimSpace(hm[1]))
	if err != nil {
		return time.Time{}, "", fmt.Errorf("dispatch: unparseable time %q: %w", timeText, err)
	}

	appointment := time.Date(date.Year(), date.Month(), date.Day(),
		parsed.Hour(), parsed.Minute(), 0, 0, time.Local)
	return appointment, timeText, nil
}

// ParseSchedule reads the uploaded daily appointment spreadsheet. The first
// sheet must carry a header row followed by one row per appointment:
// patient full name, attachment ("<date> at <time>hs"), doctor, phone numbers
// separated by commas or semicolons.
func ParseSchedule(r io.Reader) ([]Entry, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("dispatch: open spreadsheet: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("dispatch: spreadsheet has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("dispatch: read rows: %w", err)
	}

	var entries []Entry
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) < 4 {
			continue
		}
		name := strings.TrimSpace(row[0])
		attachment := strings.TrimSpace(row[1])
		doctor := strings.TrimSpace(row[2])
		phones := splitPhones(row[3])
		if name == "" || attachment == "" || doctor == "" || len(phones) == 0 {
			continue
		}
		entries = append(entries, Entry{
			PatientFullName: name,
			Attachment:      attachment,
			Doctor:          doctor,
			Phones:          phones,
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dispatch: spreadsheet has no appointment rows")
	}
	return entries, nil
}

func splitPhones(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var phones []string
	for _, field := range fields {
		if p := strings.TrimSpace(field); p != "" {
			phones = append(phones, p)
		}
	}
	return phones
}
