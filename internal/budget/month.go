package budget

import (
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/fatali-fataliyev/envelope_budget/customErrors"
)

const monthLayout = "2006-01"

// Month identifies a calendar month. It is the time axis of all budgeting state.
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) Month {
	return MonthOf(time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
}

func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, appErrors.New(appErrors.ErrInvalidInput, "invalid month %q, expected YYYY-MM", s)
	}
	return MonthOf(t), nil
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) index() int {
	return m.Year*12 + int(m.Month) - 1
}

func monthFromIndex(i int) Month {
	year := i / 12
	month := i%12 + 1
	if i < 0 && i%12 != 0 {
		year--
		month = i%12 + 13
	}
	return Month{Year: year, Month: time.Month(month)}
}

func (m Month) AddMonths(n int) Month {
	return monthFromIndex(m.index() + n)
}

func (m Month) Next() Month {
	return m.AddMonths(1)
}

func (m Month) Prev() Month {
	return m.AddMonths(-1)
}

func (m Month) Compare(o Month) int {
	switch {
	case m.index() < o.index():
		return -1
	case m.index() > o.index():
		return 1
	default:
		return 0
	}
}

func (m Month) Before(o Month) bool {
	return m.Compare(o) < 0
}

func (m Month) After(o Month) bool {
	return m.Compare(o) > 0
}

// MonthsUntil returns how many months lie between m and o; negative when o is earlier.
func (m Month) MonthsUntil(o Month) int {
	return o.index() - m.index()
}

func (m Month) FirstDay() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// LastDay returns the last instant of the month.
func (m Month) LastDay() time.Time {
	return m.Next().FirstDay().Add(-time.Nanosecond)
}

func (m Month) Contains(t time.Time) bool {
	return MonthOf(t) == m
}

func (m Month) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(m.String())
}

func (m *Month) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*m = Month{}
		return nil
	}
	parsed, err := ParseMonth(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
