package world

// Ledger holds the two balances. Neither ever goes negative.
type Ledger struct {
	Currency float64
	Points   float64
}

// SpendCurrency deducts a when a <= Currency and reports whether it did.
func (l *Ledger) SpendCurrency(a float64) bool {
	if a < 0 || a > l.Currency {
		return false
	}
	l.Currency -= a
	return true
}

// SpendPoints deducts a when a <= Points and reports whether it did.
func (l *Ledger) SpendPoints(a float64) bool {
	if a < 0 || a > l.Points {
		return false
	}
	l.Points -= a
	return true
}

func (l *Ledger) Earn(currency, points float64) {
	if currency > 0 {
		l.Currency += currency
	}
	if points > 0 {
		l.Points += points
	}
}

// EscalatingCost returns base*m^n. The power is built by repeated
// multiplication so that EscalatingCost(b, m, n+1) == EscalatingCost(b, m, n)*m.
func EscalatingCost(base, m float64, n int) float64 {
	c := base
	for i := 0; i < n; i++ {
		c *= m
	}
	return c
}

// Resource is a finite, restockable good or topic.
type Resource struct {
	ID         string
	Name       string
	Price      float64
	Cost       float64
	Appeal     float64
	Difficulty float64
	Impact     float64
	Stock      int
	MaxStock   int
}

// consume takes one unit. It refuses at zero stock.
func (r *Resource) consume() bool {
	if r.Stock <= 0 {
		return false
	}
	r.Stock--
	return true
}

func (r *Resource) restock(n int) {
	if n > 0 {
		r.Stock += n
	}
}

// Station is a fixed rectangle bound to one resource index.
type Station struct {
	ID       string
	X        float64
	Y        float64
	W        float64
	H        float64
	Resource int
}

func (s *Station) Center() Vec2 { return Vec2{X: s.X + s.W/2, Y: s.Y + s.H/2} }

func (s *Station) Contains(p Vec2) bool {
	return p.X >= s.X && p.X <= s.X+s.W && p.Y >= s.Y && p.Y <= s.Y+s.H
}

// Helper is a hired automaton. Dismissed helpers stay in the roster as inactive records.
type Helper struct {
	ID           string
	Kind         string
	Active       bool
	Funded       bool
	PaymentTimer float64
	HiredAt      float64
}
