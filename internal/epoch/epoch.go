// Package epoch implements superposed epoch analysis.
//
// For each anchor date a window of Length days is cut from a daily series,
// starting PreOffset days before the anchor. Windows are stacked into a
// Matrix aligned by offset from the anchor, never by calendar date, and
// reduced column-wise into a Profile.
//
// With Realign set, each window is cut twice: the first cut locates the
// window minimum, the anchor is shifted so that minimum lands on Target, and
// the window is cut again from the shifted anchor. Windows that run past
// either end of the series are padded with missing values.
package epoch

import (
	"errors"
	"fmt"
	"time"

	"github.com/KI7MT/ki7mt-forbush-lab/internal/common"
	"github.com/KI7MT/ki7mt-forbush-lab/internal/series"
)

var (
	ErrAnchorNotFound = errors.New("epoch: anchor not in series")
	ErrBadLength      = errors.New("epoch: length must be positive")
	ErrBadOffset      = errors.New("epoch: pre-offset must be within the window")
	ErrEmptyMatrix    = errors.New("epoch: no windows")
)

// AnchorError reports an anchor date outside the loaded series.
type AnchorError struct {
	Anchor time.Time
	Series string
	Start  time.Time
	End    time.Time
}

func (e *AnchorError) Error() string {
	return fmt.Sprintf("epoch: anchor %s not in %s (%s to %s)",
		e.Anchor.Format(series.DateLayout), e.Series,
		e.Start.Format(series.DateLayout), e.End.Format(series.DateLayout))
}

func (e *AnchorError) Is(target error) bool { return target == ErrAnchorNotFound }

// Window is one extracted epoch.
type Window struct {
	Anchor  time.Time // requested anchor
	Aligned time.Time // anchor after realignment (== Anchor without it)
	Shift   int       // Aligned - Anchor in days
	Values  []float64
}

// Matrix holds K windows of identical length L, index-aligned by offset.
type Matrix struct {
	Length    int
	PreOffset int
	Windows   []Window
}

// Events returns K.
func (m *Matrix) Events() int { return len(m.Windows) }

// Column returns the values of every window at position j.
func (m *Matrix) Column(j int) []float64 {
	col := make([]float64, len(m.Windows))
	for k, w := range m.Windows {
		col[k] = w.Values[j]
	}
	return col
}

// Offsets returns the day offsets -PreOffset..Length-PreOffset-1.
func (m *Matrix) Offsets() []int {
	return Offsets(m.Length, m.PreOffset)
}

// AlignedAnchors returns the effective anchor of every window, suitable for
// the anchor cache.
func (m *Matrix) AlignedAnchors() []time.Time {
	out := make([]time.Time, len(m.Windows))
	for i, w := range m.Windows {
		out[i] = w.Aligned
	}
	return out
}

// Offsets returns -pre..length-pre-1.
func Offsets(length, pre int) []int {
	out := make([]int, length)
	for i := range out {
		out[i] = i - pre
	}
	return out
}

func locate(s *series.Series, anchor time.Time) (int, error) {
	i, ok := s.IndexOf(anchor)
	if !ok {
		return 0, &AnchorError{Anchor: series.Day(anchor), Series: s.Name, Start: s.Start(), End: s.End()}
	}
	return i, nil
}

func validate(length, pre int) error {
	if length < 1 {
		return fmt.Errorf("%w: %d", ErrBadLength, length)
	}
	if pre < 0 || pre >= length {
		return fmt.Errorf("%w: %d for length %d", ErrBadOffset, pre, length)
	}
	return nil
}

// Extract returns length values starting pre days before anchor. The anchor
// must lie inside the series; the window itself may run off either end and
// is padded with missing values there.
func Extract(s *series.Series, anchor time.Time, length, pre int) ([]float64, error) {
	if err := validate(length, pre); err != nil {
		return nil, err
	}
	i, err := locate(s, anchor)
	if err != nil {
		return nil, err
	}
	return s.Window(i-pre, length), nil
}

// AlignmentShift is the number of days to move an anchor so that the minimum
// of window lands on offset target. Windows with no valid value need no shift.
func AlignmentShift(window []float64, pre, target int) int {
	m := series.NanArgMin(window)
	if m < 0 {
		return 0
	}
	return m - pre - target
}

// Extractor builds epoch matrices.
type Extractor struct {
	Length    int
	PreOffset int
	Realign   bool
	Target    int // offset the window minima are aligned to
	Logger    *common.Logger
}

// Window extracts one anchor, realigning when configured.
func (e Extractor) Window(s *series.Series, anchor time.Time) (Window, error) {
	if err := validate(e.Length, e.PreOffset); err != nil {
		return Window{}, err
	}
	anchor = series.Day(anchor)
	i, err := locate(s, anchor)
	if err != nil {
		return Window{}, err
	}

	w := Window{Anchor: anchor, Aligned: anchor, Values: s.Window(i-e.PreOffset, e.Length)}
	if !e.Realign {
		return w, nil
	}

	shift := AlignmentShift(w.Values, e.PreOffset, e.Target)
	if shift == 0 {
		return w, nil
	}
	w.Shift = shift
	w.Aligned = anchor.AddDate(0, 0, shift)
	w.Values = s.Window(i+shift-e.PreOffset, e.Length)
	return w, nil
}

// Build extracts every anchor. An anchor that cannot be extracted is logged
// and reported in failures; the remaining anchors are still processed. The
// error return is reserved for invalid configuration.
func (e Extractor) Build(s *series.Series, anchors []time.Time) (*Matrix, []error, error) {
	if err := validate(e.Length, e.PreOffset); err != nil {
		return nil, nil, err
	}

	m := &Matrix{Length: e.Length, PreOffset: e.PreOffset}
	var failures []error
	for _, a := range anchors {
		w, err := e.Window(s, a)
		if err != nil {
			e.Logger.Warnf("Skipping event %s: %v", a.Format(series.DateLayout), err)
			failures = append(failures, err)
			continue
		}
		if w.Shift != 0 {
			e.Logger.Debugf("Event %s realigned by %+d days to %s",
				w.Anchor.Format(series.DateLayout), w.Shift, w.Aligned.Format(series.DateLayout))
		}
		m.Windows = append(m.Windows, w)
	}
	return m, failures, nil
}
