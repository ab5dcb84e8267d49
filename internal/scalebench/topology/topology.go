// Package topology reads the host's core counts and turns them into the list of process counts a sweep may use.
package topology

import (
	"github.com/shirou/gopsutil/cpu"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// ReferenceProcessCounts is the fixed list of process counts a sweep draws from before clipping to the host.
var ReferenceProcessCounts = []int{1, 2, 4, 6, 8, 10, 12, 16}

// Topology holds the core counts detected on the host. A count of zero means it could not be determined.
type Topology struct {
	Physical int `yaml:"physical"`
	Logical  int `yaml:"logical"`
}

// CountFunc has the signature of cpu.Counts.
type CountFunc func(logical bool) (int, error)

// Probe queries the host topology through gopsutil. It never fails: an unreadable count is reported as zero.
func Probe() Topology {
	return ProbeWith(cpu.Counts)
}

// ProbeWith is Probe with an injectable source of core counts.
func ProbeWith(counts CountFunc) Topology {
	return Topology{
		Physical: safeCount(counts, false),
		Logical:  safeCount(counts, true),
	}
}

func safeCount(counts CountFunc, logical bool) int {
	n, err := counts(logical)
	if err != nil {
		log.WithError(err).Warnf("Unable to detect core count (logical=%t)", logical)
		return 0
	}
	if n < 0 {
		return 0
	}
	return n
}

// Capacity is the largest process count that may be placed on the host: the physical core count, or the
// logical (hardware thread) count when useHardwareThreads is set.
func (t Topology) Capacity(useHardwareThreads bool) int {
	if useHardwareThreads {
		return t.Logical
	}
	return t.Physical
}

// CandidateProcessCounts returns the entries of reference that are positive and no greater than capacity, in their
// original order and without duplicates. If nothing survives it returns [1], so a sweep always has a process count.
func CandidateProcessCounts(reference []int, capacity int) []int {
	rv := make([]int, 0, len(reference))
	for _, p := range reference {
		if p < 1 || p > capacity || slices.Contains(rv, p) {
			continue
		}
		rv = append(rv, p)
	}
	if len(rv) == 0 {
		return []int{1}
	}
	return rv
}
