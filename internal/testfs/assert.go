package testfs

import "testing"

// -----------------------------------------------------------------------------
// Assertion Functions - Shared between TempDirHarness and E2E Harness
// -----------------------------------------------------------------------------

// AssertVolume verifies the actual filesystem state matches expected.
//
// Checks:
//   - Files exist at all specified paths
//   - Files in the same File entry share the same inode (hardlinks)
//   - Files in different File entries have different inodes
//   - Mode and ModTime match where the expectation sets them
//   - Symlinks point to the expected targets
//   - No path is left under a replacement temp name
func AssertVolume(t *testing.T, expected Volume, actual ReapVolume) {
	t.Helper()
	AssertFiles(t, expected.Files, actual.Files)
	AssertSymlinks(t, expected.Symlinks, actual.Symlinks)
	for _, p := range actual.Leftovers {
		t.Errorf("temporary file left behind: %s", p)
	}
}

// AssertFiles verifies expected files exist and hardlinks are correct.
//
// Paths not mentioned in expected are ignored.
func AssertFiles(t *testing.T, expected []File, actual []ReapFile) {
	t.Helper()

	byPath := make(map[string]*ReapFile)
	for i := range actual {
		for _, p := range actual[i].Path {
			byPath[p] = &actual[i]
		}
	}

	owner := make(map[*ReapFile]int) // Surviving inode -> expected entry index
	for i, ef := range expected {
		rf := assertEntry(t, ef, byPath)
		if rf == nil {
			continue
		}
		if j, taken := owner[rf]; taken {
			t.Errorf("files from different entries share inode %d: %v and %v",
				rf.Inode, expected[j].Path, ef.Path)
			continue
		}
		owner[rf] = i
	}
}

// assertEntry checks a single expected entry and returns the inode all of its
// paths resolve to, or nil when they do not resolve to a single one.
func assertEntry(t *testing.T, ef File, byPath map[string]*ReapFile) *ReapFile {
	t.Helper()
	if len(ef.Path) == 0 {
		return nil
	}

	first, ok := byPath[ef.Path[0]]
	if !ok {
		t.Errorf("expected file not found: %s", ef.Path[0])
		return nil
	}
	for _, p := range ef.Path[1:] {
		rf, ok := byPath[p]
		switch {
		case !ok:
			t.Errorf("expected file not found: %s", p)
		case rf != first:
			t.Errorf("hardlink mismatch: %s (inode %d) != %s (inode %d)",
				ef.Path[0], first.Inode, p, rf.Inode)
		}
	}

	if ef.Mode != 0 && first.Mode != ef.Mode {
		t.Errorf("%s mode: got %o, want %o", ef.Path[0], first.Mode, ef.Mode)
	}
	if ef.ModTime != 0 && first.ModTime != ef.ModTime {
		t.Errorf("%s mtime: got %d, want %d", ef.Path[0], first.ModTime, ef.ModTime)
	}
	return first
}

// AssertSymlinks verifies expected symlinks exist with correct targets.
func AssertSymlinks(t *testing.T, expected []Symlink, actual []ReapSymlink) {
	t.Helper()

	targets := make(map[string]string, len(actual))
	for _, rs := range actual {
		targets[rs.Path] = rs.Target
	}

	for _, es := range expected {
		target, ok := targets[es.Path]
		if !ok {
			t.Errorf("expected symlink not found: %s", es.Path)
			continue
		}
		if target != es.Target {
			t.Errorf("symlink %s: got target %q, want %q", es.Path, target, es.Target)
		}
	}
}
