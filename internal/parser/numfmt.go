package parser

import (
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// cellStyles knows which cell style indexes (the s attribute of a cell)
// display their number as a date or time.
type cellStyles struct {
	date     []bool
	date1904 bool
}

// isDate reports whether style index s formats numbers as dates.
func (c *cellStyles) isDate(s string) bool {
	if c == nil || s == "" {
		return false
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || i >= len(c.date) {
		return false
	}
	return c.date[i]
}

// loadCellStyles reads cellXfs and custom numFmts from the styles part. A
// missing or damaged part leaves every cell numeric.
func loadCellStyles(s *Session, name string, date1904 bool) (*cellStyles, error) {
	out := &cellStyles{date1904: date1904}
	data, err := s.readOptional(name)
	if err != nil || data == nil {
		return out, err
	}
	custom := map[int]string{}
	var xfs []int
	inXfs := false
	st := s.stream(name, data)
	for {
		ev, err := st.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.xmlError(name, "styles", err)
			break
		}
		switch {
		case ev.IsOpen("numFmt"):
			if id, err := strconv.Atoi(ev.AttrOr("numFmtId", "")); err == nil {
				custom[id] = ev.AttrOr("formatCode", "")
			}
		case ev.IsOpen("cellXfs"):
			inXfs = true
		case ev.IsClose("cellXfs"):
			inXfs = false
		case ev.IsOpen("xf") && inXfs:
			id, err := strconv.Atoi(ev.AttrOr("numFmtId", "0"))
			if err != nil {
				id = 0
			}
			xfs = append(xfs, id)
		}
	}
	out.date = make([]bool, len(xfs))
	for i, id := range xfs {
		if code, ok := custom[id]; ok {
			out.date[i] = isDateFormatCode(code)
		} else {
			out.date[i] = isBuiltinDateFormat(id)
		}
	}
	return out, s.Warn.Err()
}

// isBuiltinDateFormat reports whether a built-in number format id is a date
// or time format.
func isBuiltinDateFormat(id int) bool {
	return (id >= 14 && id <= 22) || (id >= 45 && id <= 47)
}

// isDateFormatCode reports whether a custom format code contains date or
// time tokens outside quoted text, escapes and bracketed modifiers.
func isDateFormatCode(code string) bool {
	// Only the first section (positive numbers) decides.
	if i := strings.IndexByte(code, ';'); i >= 0 {
		code = code[:i]
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch c {
		case '"':
			j := strings.IndexByte(code[i+1:], '"')
			if j < 0 {
				return false
			}
			i += j + 1
		case '\\', '_', '*':
			i++
		case '[':
			j := strings.IndexByte(code[i:], ']')
			if j < 0 {
				return false
			}
			switch strings.ToLower(code[i+1 : i+j]) {
			case "h", "hh", "m", "mm", "s", "ss":
				return true
			}
			i += j
		case 'y', 'Y', 'm', 'M', 'd', 'D', 'h', 'H', 's', 'S':
			return true
		}
	}
	return false
}

// maxSerial is 9999-12-31 in the 1900 date system.
const maxSerial = 2958465

var (
	epoch1900 = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	epoch1904 = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)
)

// formatSerial renders a spreadsheet date serial as YYYY-MM-DD, adding
// HH:MM:SS when it has a time of day; values below one day are times only.
// It reports false when v is not a usable serial.
func formatSerial(v string, date1904 bool) (string, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || f < 0 || f > maxSerial {
		return "", false
	}
	days := math.Floor(f)
	secs := math.Round((f - days) * 86400)
	if secs >= 86400 {
		days++
		secs = 0
	}
	clock := time.Duration(secs) * time.Second
	if days == 0 && !date1904 {
		return time.Time{}.Add(clock).Format("15:04:05"), true
	}

	base := epoch1900
	switch {
	case date1904:
		base = epoch1904
	case days < 60:
		// Serials before the fictitious 1900-02-29 count from 1899-12-31.
		base = base.AddDate(0, 0, 1)
	}
	t := base.AddDate(0, 0, int(days)).Add(clock)
	if secs == 0 {
		return t.Format("2006-01-02"), true
	}
	return t.Format("2006-01-02 15:04:05"), true
}
