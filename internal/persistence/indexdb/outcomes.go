package indexdb

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// OutcomeSummary aggregates the outcome read model for one theme.
type OutcomeSummary struct {
	Theme     string
	Visits    int
	Attempts  int
	Successes int
	ByOutcome map[string]int
	ByType    map[string]TypeSummary
	MeanMood  float64
}

type TypeSummary struct {
	Visits    int
	Successes int
	// MeanProbability averages the success probability over attempted visits only.
	MeanProbability float64
}

// SuccessRate excludes visits that never reached a decision (no material, impatience, timeouts).
func (o OutcomeSummary) SuccessRate() float64 {
	if o.Attempts == 0 {
		return 0
	}
	return float64(o.Successes) / float64(o.Attempts)
}

func (s *SQLiteStore) OutcomeStats(ctx context.Context, theme string) (OutcomeSummary, error) {
	out := OutcomeSummary{
		Theme:     theme,
		ByOutcome: map[string]int{},
		ByType:    map[string]TypeSummary{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*), COALESCE(AVG(global_mood), 0) FROM outcomes WHERE theme=? GROUP BY outcome`, theme)
	if err != nil {
		return out, err
	}
	var moodSum float64
	for rows.Next() {
		var (
			outcome string
			n       int
			mood    float64
		)
		if err := rows.Scan(&outcome, &n, &mood); err != nil {
			rows.Close()
			return out, err
		}
		out.ByOutcome[outcome] = n
		out.Visits += n
		moodSum += mood * float64(n)
		switch outcome {
		case "success":
			out.Successes += n
			out.Attempts += n
		case "too_extreme", "not_convinced":
			out.Attempts += n
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return out, err
	}
	rows.Close()
	if out.Visits > 0 {
		out.MeanMood = moodSum / float64(out.Visits)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT actor_type, COUNT(*),
			SUM(CASE WHEN outcome='success' THEN 1 ELSE 0 END),
			COALESCE(AVG(CASE WHEN outcome IN ('success','too_extreme','not_convinced') THEN probability END), 0)
		FROM outcomes WHERE theme=? GROUP BY actor_type`, theme)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			typ string
			ts  TypeSummary
		)
		if err := rows.Scan(&typ, &ts.Visits, &ts.Successes, &ts.MeanProbability); err != nil {
			return out, err
		}
		out.ByType[typ] = ts
	}
	return out, rows.Err()
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
