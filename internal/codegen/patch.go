package codegen

import (
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Patch describes how to turn original into modified. The result is empty
// when the two are identical.
func Patch(original, modified string) string {
	if original == modified {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, modified, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(original, diffs))
}

// ApplyPatch applies a patch produced by Patch. It fails if any hunk does
// not apply cleanly.
func ApplyPatch(original, patch string) (string, error) {
	if patch == "" {
		return original, nil
	}
	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return "", fmt.Errorf("failed to parse patch: %w", err)
	}
	out, applied := dmp.PatchApply(patches, original)
	for i, ok := range applied {
		if !ok {
			return "", fmt.Errorf("patch hunk %d did not apply", i+1)
		}
	}
	return out, nil
}

// DiffStats counts inserted and deleted characters between two versions
func DiffStats(original, modified string) (additions, deletions int) {
	dmp := diffmatchpatch.New()
	for _, d := range dmp.DiffMain(original, modified, false) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += len(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += len(d.Text)
		}
	}
	return additions, deletions
}
