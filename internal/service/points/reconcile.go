package points

import (
	"context"
	"fmt"
)

// IntegrityReport compares a user's cached total with their history.
// MatchPoints is the display tally kept on matches; it is informational only.
type IntegrityReport struct {
	UserID      string `json:"userId"`
	StoredTotal int    `json:"storedTotal"`
	RecordSum   int    `json:"recordSum"`
	MatchPoints int    `json:"matchPoints"`
	Consistent  bool   `json:"consistent"`
	Repaired    bool   `json:"repaired"`
}

// CheckIntegrity recomputes the total from records without changing anything.
func (l *Ledger) CheckIntegrity(ctx context.Context, userID string) (IntegrityReport, error) {
	rep := IntegrityReport{UserID: userID}

	stored, _, err := l.users.GetTotalPoints(ctx, userID)
	if err != nil {
		return rep, fmt.Errorf("read total: %w", err)
	}
	sum, err := l.records.SumByUser(ctx, userID)
	if err != nil {
		return rep, fmt.Errorf("sum records: %w", err)
	}
	tally, err := l.matches.SumTallies(ctx, userID)
	if err != nil {
		return rep, fmt.Errorf("sum match tallies: %w", err)
	}

	rep.StoredTotal = stored
	rep.RecordSum = sum
	rep.MatchPoints = tally
	rep.Consistent = stored == sum
	return rep, nil
}

// Reconcile overwrites a drifted total with the sum of the user's records.
// History is never touched.
func (l *Ledger) Reconcile(ctx context.Context, userID string) (IntegrityReport, error) {
	rep, err := l.CheckIntegrity(ctx, userID)
	if err != nil || rep.Consistent {
		return rep, err
	}

	if err := l.users.EnsureExists(ctx, userID); err != nil {
		return rep, fmt.Errorf("ensure points profile: %w", err)
	}
	if err := l.users.SetTotalPoints(ctx, userID, rep.RecordSum); err != nil {
		return rep, fmt.Errorf("overwrite total: %w", err)
	}
	if l.totals != nil {
		_ = l.totals.SetTotal(ctx, userID, rep.RecordSum)
	}

	l.log.Warn("points total reconciled",
		"user", userID, "stored", rep.StoredTotal, "records", rep.RecordSum)
	rep.Repaired = true
	return rep, nil
}

// CheckAll runs CheckIntegrity for every user and returns the inconsistent
// ones. Nothing is written.
func (l *Ledger) CheckAll(ctx context.Context) ([]IntegrityReport, error) {
	ids, err := l.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var drifted []IntegrityReport
	for _, id := range ids {
		rep, err := l.CheckIntegrity(ctx, id)
		if err != nil {
			return drifted, fmt.Errorf("check %s: %w", id, err)
		}
		if !rep.Consistent {
			drifted = append(drifted, rep)
		}
	}
	return drifted, nil
}

// ReconcileAll runs Reconcile for every user and returns the repaired ones.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]IntegrityReport, error) {
	ids, err := l.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var repaired []IntegrityReport
	for _, id := range ids {
		rep, err := l.Reconcile(ctx, id)
		if err != nil {
			return repaired, fmt.Errorf("reconcile %s: %w", id, err)
		}
		if rep.Repaired {
			repaired = append(repaired, rep)
		}
	}
	return repaired, nil
}
