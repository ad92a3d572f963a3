package transform

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/youtubeanalytics/v2"
)

// Analytics report column names.
const (
	ColDay                     = "day"
	ColViews                   = "views"
	ColLikes                   = "likes"
	ColComments                = "comments"
	ColShares                  = "shares"
	ColSubscribersGained       = "subscribersGained"
	ColSubscribersLost         = "subscribersLost"
	ColEstimatedMinutesWatched = "estimatedMinutesWatched"
	ColAverageViewDuration     = "averageViewDuration"
	ColAverageViewPercentage   = "averageViewPercentage"
)

// ColumnIndex maps a report column name to its position in each row.
// It is built once per response from the declared column headers, so metric
// lookups never depend on the order the API happened to return.
type ColumnIndex map[string]int

// NewColumnIndex builds the lookup for a response's column headers.
// The first declaration of a name wins.
func NewColumnIndex(headers []*youtubeanalytics.ResultTableColumnHeader) ColumnIndex {
	idx := make(ColumnIndex, len(headers))
	for i, h := range headers {
		if h == nil || h.Name == "" {
			continue
		}
		if _, dup := idx[h.Name]; !dup {
			idx[h.Name] = i
		}
	}
	return idx
}

func (c ColumnIndex) lookup(row []interface{}, name string) (interface{}, bool) {
	pos, ok := c[name]
	if !ok || pos >= len(row) || row[pos] == nil {
		return nil, false
	}
	return row[pos], true
}

// Int returns the named metric as a non-negative count. Missing, negative,
// fractional or out of range values yield 0.
func (c ColumnIndex) Int(row []interface{}, name string) int64 {
	v, ok := c.lookup(row, name)
	if !ok {
		return 0
	}
	n, ok := toCount(v)
	if !ok {
		return 0
	}
	return n
}

// Float returns the named metric as a float, 0.0 when missing or malformed.
func (c ColumnIndex) Float(row []interface{}, name string) float64 {
	v, ok := c.lookup(row, name)
	if !ok {
		return 0
	}
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Day returns the row's calendar date. When the response does not declare a
// day column the first position is used.
func (c ColumnIndex) Day(row []interface{}) (time.Time, bool) {
	var raw interface{}
	if pos, ok := c[ColDay]; ok {
		if pos >= len(row) {
			return time.Time{}, false
		}
		raw = row[pos]
	} else {
		if len(row) == 0 {
			return time.Time{}, false
		}
		raw = row[0]
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseDate(s)
}

// maxCount is 2^63, the first float64 that no longer fits an int64.
const maxCount = float64(1 << 63)

func toCount(v interface{}) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, false
		}
		n = i
	case json.Number:
		i, err := strconv.ParseInt(x.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		n = i
	case float64, float32:
		f, _ := toFloat(x)
		if math.IsNaN(f) || f != math.Trunc(f) || f < 0 || f >= maxCount {
			return 0, false
		}
		n = int64(f)
	default:
		return 0, false
	}
	if n < 0 {
		return 0, false
	}
	return n, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
