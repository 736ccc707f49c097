package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ResourceSnapshot is the minimal data required to compute diffs between
// resource versions.
type ResourceSnapshot struct {
	LookupKey LookupKey
	FamilyID  *uuid.UUID
	Fields    Object
	Version   int64
}

// NewResourceSnapshot creates a snapshot from the current resource record.
func NewResourceSnapshot(r Resource) ResourceSnapshot {
	return ResourceSnapshot{
		LookupKey: r.LookupKey,
		FamilyID:  copyID(r.FamilyID),
		Fields:    r.Fields.Clone(),
		Version:   r.Version,
	}
}

// NewResourceSnapshotFromHistory creates a snapshot from a history record.
func NewResourceSnapshotFromHistory(h ResourceHistory) ResourceSnapshot {
	return ResourceSnapshot{
		LookupKey: h.LookupKey,
		FamilyID:  copyID(h.FamilyID),
		Fields:    h.Fields.Clone(),
		Version:   h.Version,
	}
}

// CanonicalText flattens the snapshot into a deterministic set of lines
// suitable for diffing.
func (s ResourceSnapshot) CanonicalText() ([]string, error) {
	family := "(none)"
	if s.FamilyID != nil {
		family = s.FamilyID.String()
	}
	lines := []string{
		fmt.Sprintf("LookupKey: %s", s.LookupKey),
		fmt.Sprintf("Family: %s", family),
		fmt.Sprintf("Version: %d", s.Version),
		"Fields:",
	}

	flattened := map[string]string{}
	if len(s.Fields) > 0 {
		if err := flattenValue("", s.Fields, flattened); err != nil {
			return nil, err
		}
	}

	if len(flattened) == 0 {
		return append(lines, "  (empty)"), nil
	}

	keys := make([]string, 0, len(flattened))
	for key := range flattened {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, flattened[key]))
	}

	return lines, nil
}

// DiffResourceSnapshots produces a unified diff between two snapshots using
// the provided labels. A nil snapshot diffs as empty content.
func DiffResourceSnapshots(baseLabel string, base *ResourceSnapshot, targetLabel string, target *ResourceSnapshot) (string, error) {
	baseString, err := canonicalString(base)
	if err != nil {
		return "", err
	}

	targetString, err := canonicalString(target)
	if err != nil {
		return "", err
	}

	return buildUnifiedDiff(baseLabel, targetLabel, baseString, targetString), nil
}

func canonicalString(snapshot *ResourceSnapshot) (string, error) {
	if snapshot == nil {
		return "", nil
	}

	lines, err := snapshot.CanonicalText()
	if err != nil {
		return "", err
	}

	return strings.Join(lines, "\n") + "\n", nil
}

func flattenValue(prefix string, value Value, acc map[string]string) error {
	switch typed := value.(type) {
	case Object:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "{}"
			}
			return nil
		}
		for _, key := range typed.OrderedKeys() {
			nextPrefix := key
			if prefix != "" {
				nextPrefix = prefix + "." + key
			}
			if err := flattenValue(nextPrefix, typed[key], acc); err != nil {
				return err
			}
		}
	case Array:
		if len(typed) == 0 {
			if prefix != "" {
				acc[prefix] = "[]"
			}
			return nil
		}
		for idx, item := range typed {
			nextPrefix := fmt.Sprintf("%s[%d]", prefix, idx)
			if err := flattenValue(nextPrefix, item, acc); err != nil {
				return err
			}
		}
	case CustomProperty:
		if prefix == "" {
			return fmt.Errorf("property key missing for custom property %s", typed.Type)
		}
		acc[prefix+"#type"] = string(typed.Type)
		return flattenValue(prefix, typed.Value, acc)
	case nil, Null:
		if prefix != "" {
			acc[prefix] = "null"
		}
	default:
		if prefix == "" {
			return fmt.Errorf("property key missing for value %v", typed)
		}
		encoded, err := EncodeJSON(typed)
		if err != nil {
			acc[prefix] = Text(typed)
		} else {
			acc[prefix] = encoded
		}
	}

	return nil
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel, baseContent, targetContent string) string {
	baseLines := splitLines(baseContent)
	targetLines := splitLines(targetContent)

	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString(fmt.Sprintf("@@ -1,%d +1,%d @@\n", len(baseLines), len(targetLines)))
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}

	return builder.String()
}

func splitLines(input string) []string {
	if input == "" {
		return nil
	}
	lines := strings.Split(input, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines aligns the two inputs on their longest common subsequence.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}

		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}

	for ; i < m; i++ {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
	}
	for ; j < n; j++ {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
	}

	return ops
}
