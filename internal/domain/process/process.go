// Package process defines the blood-test workflow states a patient moves
// through and the coarser buckets used for filtering.
package process

import (
	"strings"

	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// Process is a workflow state. The zero value is not a valid state.
type Process string

const (
	Scheduled Process = "scheduled"
	Drawn     Process = "drawn"
	InTransit Process = "in_transit"
	Testing   Process = "testing"
	Completed Process = "completed"
)

// Ordered lists the states in their canonical forward order.
var Ordered = []Process{Scheduled, Drawn, InTransit, Testing, Completed}

var labels = map[Process]string{
	Scheduled: "นัดหมาย",
	Drawn:     "เจาะเลือด",
	InTransit: "กำลังจัดส่ง",
	Testing:   "กำลังตรวจ",
	Completed: "เสร็จสิ้น",
}

// Label returns the Thai display label.
func (p Process) Label() string {
	return labels[p]
}

func (p Process) Valid() bool {
	_, ok := labels[p]
	return ok
}

// Rank is the position in Ordered, or -1 for invalid states.
func (p Process) Rank() int {
	for i, o := range Ordered {
		if o == p {
			return i
		}
	}
	return -1
}

func (p Process) Terminal() bool {
	return p == Completed
}

var separators = strings.NewReplacer("_", "", "-", "", " ", "")

// fold lowercases and drops separators, so "InTransit", "in-transit" and
// "in_transit" compare equal.
func fold(s string) string {
	return separators.Replace(strings.ToLower(s))
}

// Parse accepts the canonical name in any case and spacing, or the Thai
// label.
func Parse(raw string) (Process, error) {
	s := strings.TrimSpace(raw)
	for p, label := range labels {
		if s == label {
			return p, nil
		}
	}
	if key := fold(s); key != "" {
		for _, p := range Ordered {
			if fold(string(p)) == key {
				return p, nil
			}
		}
	}
	return "", apperr.InvalidState("invalid_process",
		"unknown process state %q; expected one of นัดหมาย, เจาะเลือด, กำลังจัดส่ง, กำลังตรวจ, เสร็จสิ้น", raw)
}
