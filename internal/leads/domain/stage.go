// Package domain holds the lead protection model: stages, statuses, leads,
// activities, access contexts and audit records. It has no I/O.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Stage is the progressive stage of a lead. The zero value is PRELIMINARY.
type Stage int

const (
	StagePreliminary Stage = iota
	StageRegistered
	StageQualified
)

// PreClaimWindow is how long a PRELIMINARY lead may hold its claim without a
// qualifying event. It is independent of the protection clock.
const PreClaimWindow = 10 * 24 * time.Hour

// stageTable is the explicit integer mapping used for persistence.
var stageTable = []struct {
	stage Stage
	code  int
	name  string
}{
	{StagePreliminary, 0, "PRELIMINARY"},
	{StageRegistered, 1, "REGISTERED"},
	{StageQualified, 2, "QUALIFIED"},
}

// StageFromInt maps a persisted code back to a Stage.
func StageFromInt(code int) (Stage, error) {
	for _, row := range stageTable {
		if row.code == code {
			return row.stage, nil
		}
	}
	return StagePreliminary, fmt.Errorf("unknown stage code %d", code)
}

// ParseStage maps a stage name (case-insensitive) to a Stage.
func ParseStage(name string) (Stage, error) {
	for _, row := range stageTable {
		if strings.EqualFold(row.name, strings.TrimSpace(name)) {
			return row.stage, nil
		}
	}
	return StagePreliminary, fmt.Errorf("unknown stage %q", name)
}

// Int returns the persisted code of the stage.
func (s Stage) Int() int {
	for _, row := range stageTable {
		if row.stage == s {
			return row.code
		}
	}
	return -1
}

func (s Stage) String() string {
	for _, row := range stageTable {
		if row.stage == s {
			return row.name
		}
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	return s.Int() >= 0
}

// CanTransitionTo accepts staying on the same stage or moving forward by exactly one.
func (s Stage) CanTransitionTo(target Stage) bool {
	if !s.Valid() || !target.Valid() {
		return false
	}
	diff := target.Int() - s.Int()
	return diff == 0 || diff == 1
}

// PreClaimDeadline returns when a PRELIMINARY claim created at createdAt lapses.
func PreClaimDeadline(createdAt time.Time) time.Time {
	return createdAt.Add(PreClaimWindow)
}
