// Package docflow holds the amendment lineage rules shared by every
// amendable document type: sequence allocation, number suffixing and
// lineage ordering. The transactional side (row locks, inserts) lives in
// the owning repositories; this package is pure.
package docflow

import (
	"regexp"
	"sort"
	"strconv"
)

var amendmentSuffix = regexp.MustCompile(`-A(\d+)$`)

// Sibling is the view of one amendment row the allocator needs: the
// stored sequence and the human-readable number. Both are consulted when
// allocating, since the two sources may theoretically disagree.
type Sibling struct {
	ID       int64
	Sequence int
	Number   string
}

// NextSequence returns the smallest positive integer not already used by
// any sibling, considering both the stored sequence column and any
// trailing -A<n> suffix parsed from the number.
func NextSequence(siblings []Sibling) int {
	used := make(map[int]bool, len(siblings)*2)
	for _, s := range siblings {
		if s.Sequence > 0 {
			used[s.Sequence] = true
		}
		if n, ok := ParseAmendmentSuffix(s.Number); ok {
			used[n] = true
		}
	}
	seq := 1
	for used[seq] {
		seq++
	}
	return seq
}

// ParseAmendmentSuffix extracts n from a trailing -A<n> suffix.
func ParseAmendmentSuffix(number string) (int, bool) {
	m := amendmentSuffix.FindStringSubmatch(number)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// BaseNumber strips any -A<n> suffix, yielding the root document number.
func BaseNumber(number string) string {
	return amendmentSuffix.ReplaceAllString(number, "")
}

// AmendedNumber builds the human-readable number of amendment seq of the
// document numbered base.
func AmendedNumber(base string, seq int) string {
	return BaseNumber(base) + "-A" + strconv.Itoa(seq)
}

// SortLineage orders a lineage in place: the root (sequence 0) first,
// then amendments by ascending sequence. less is stable on equal
// sequences so insertion order is preserved for malformed data.
func SortLineage[T any](rows []T, sequence func(T) int) {
	sort.SliceStable(rows, func(i, j int) bool {
		return sequence(rows[i]) < sequence(rows[j])
	})
}
