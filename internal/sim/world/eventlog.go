package world

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// eventf appends one human-readable line to the bounded event log shown in frames.
func (w *World) eventf(format string, args ...any) {
	line := fmt.Sprintf("[%s] ", clock(w.elapsed)) + fmt.Sprintf(format, args...)
	w.events = append(w.events, line)
	if n := w.cfg.EventLogLines; n > 0 && len(w.events) > n {
		w.events = append(w.events[:0], w.events[len(w.events)-n:]...)
	}
}

// Events returns a copy of the event log, oldest first.
func (w *World) Events() []string {
	out := make([]string, len(w.events))
	copy(out, w.events)
	return out
}

func money(v float64) string  { return "€" + humanize.CommafWithDigits(v, 2) }
func amount(v float64) string { return humanize.FtoaWithDigits(v, 2) }
func ordinal(n int) string    { return humanize.Ordinal(n) }

func clock(sec float64) string {
	s := int(sec)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
