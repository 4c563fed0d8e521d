package syncer

import (
	"slices"

	"tokostok/backend/internal/domain"
)

type Direction int

const (
	DirectionNone Direction = iota
	DirectionPush
	DirectionPull
)

func (d Direction) String() string {
	switch d {
	case DirectionPush:
		return "push"
	case DirectionPull:
		return "pull"
	default:
		return "none"
	}
}

// Side is one endpoint's view of a kind: its version row, if any, and its
// full row snapshot.
type Side[T domain.Entity[T]] struct {
	Version domain.DataVersion
	Present bool
	Rows    []T
}

// Plan is what a pass must do to the target side. Save always carries the
// source's full snapshot; DeleteIDs are target rows the source lacks.
type Plan[T domain.Entity[T]] struct {
	Direction Direction
	DeleteIDs []int64
	Save      []T
	// Version is written to the target after the rows.
	Version domain.DataVersion
	// Basis is the target's version as it was read; the local side refuses
	// to apply a plan whose basis has moved.
	Basis        domain.DataVersion
	BasisPresent bool
}

// Decide picks a direction from the two version rows alone. A side that has
// never written the kind always loses; equal timestamps mean converged.
func Decide(local domain.DataVersion, localPresent bool, remote domain.DataVersion, remotePresent bool) Direction {
	switch {
	case !localPresent && !remotePresent:
		return DirectionNone
	case !localPresent:
		return DirectionPull
	case !remotePresent:
		return DirectionPush
	}

	switch c := domain.CompareStamps(local.Timestamp, remote.Timestamp); {
	case c > 0:
		return DirectionPush
	case c < 0:
		return DirectionPull
	default:
		return DirectionNone
	}
}

// Reconcile builds the plan for one kind. It performs no I/O.
func Reconcile[T domain.Entity[T]](local Side[T], remote Side[T]) Plan[T] {
	switch Decide(local.Version, local.Present, remote.Version, remote.Present) {
	case DirectionPush:
		return Plan[T]{
			Direction:    DirectionPush,
			DeleteIDs:    missingIDs(remote.Rows, local.Rows),
			Save:         local.Rows,
			Version:      local.Version,
			Basis:        remote.Version,
			BasisPresent: remote.Present,
		}
	case DirectionPull:
		return Plan[T]{
			Direction:    DirectionPull,
			DeleteIDs:    missingIDs(local.Rows, remote.Rows),
			Save:         remote.Rows,
			Version:      remote.Version,
			Basis:        local.Version,
			BasisPresent: local.Present,
		}
	default:
		return Plan[T]{Direction: DirectionNone}
	}
}

// missingIDs returns the ids in target that source does not have, sorted.
func missingIDs[T domain.Entity[T]](target []T, source []T) []int64 {
	keep := make(map[int64]struct{}, len(source))
	for _, row := range source {
		keep[row.Key()] = struct{}{}
	}

	var ids []int64
	for _, row := range target {
		if _, ok := keep[row.Key()]; !ok {
			ids = append(ids, row.Key())
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
