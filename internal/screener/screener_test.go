package screener

import (
	"testing"
	"time"

	"github.com/ivoronin/linkdog/internal/config"
	"github.com/ivoronin/linkdog/internal/types"
)

// makeFile returns a record with realistic defaults that tests override.
func makeFile(mod func(f *types.FileInfo)) *types.FileInfo {
	f := &types.FileInfo{
		Path:    "/data/file.test",
		Size:    545,
		ModTime: time.Unix(1554498398, 0),
		Dev:     100,
		Ino:     1,
		Nlink:   1,
		Mode:    0o100664,
		Uid:     1000,
		Gid:     1000,
	}
	if mod != nil {
		mod(f)
	}
	return f
}

func defaultPolicy() config.Policy {
	return config.Policy{MinSize: 1}
}

// =============================================================================
// Section 4.1: AlreadyLinked
// =============================================================================

// TestAlreadyLinkedSelf tests a record compared with itself.
func TestAlreadyLinkedSelf(t *testing.T) {
	a := makeFile(nil)
	if !AlreadyLinked(a, a) {
		t.Error("record must be linked to itself")
	}
}

// TestAlreadyLinkedDifferentDevice tests equal inode numbers on distinct devices.
func TestAlreadyLinkedDifferentDevice(t *testing.T) {
	a := makeFile(func(f *types.FileInfo) { f.Dev = 100 })
	b := makeFile(func(f *types.FileInfo) { f.Dev = 200 })
	if AlreadyLinked(a, b) {
		t.Error("equal inode on different devices is not the same file")
	}
}

// =============================================================================
// Section 4.2: Eligible
// =============================================================================

// TestEligibleIdenticalExceptInode tests the basic positive case.
func TestEligibleIdenticalExceptInode(t *testing.T) {
	a := makeFile(func(f *types.FileInfo) { f.Ino = 100 })
	b := makeFile(func(f *types.FileInfo) { f.Ino = 101 })

	if !Eligible(a, b, defaultPolicy()) {
		t.Error("files identical except inode should be eligible")
	}
	if Eligible(a, a, defaultPolicy()) {
		t.Error("already hardlinked files must not be eligible")
	}
}

// TestEligibleRejections tests each metadata mismatch under the default policy.
func TestEligibleRejections(t *testing.T) {
	tests := []struct {
		name string
		mod  func(f *types.FileInfo)
	}{
		{"different size", func(f *types.FileInfo) { f.Size = 2048 }},
		{"different device", func(f *types.FileInfo) { f.Dev = 200 }},
		{"different mode", func(f *types.FileInfo) { f.Mode = 0o100755 }},
		{"different uid", func(f *types.FileInfo) { f.Uid = 0 }},
		{"different gid", func(f *types.FileInfo) { f.Gid = 0 }},
		{"different mtime", func(f *types.FileInfo) { f.ModTime = time.Unix(1554498399, 0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := makeFile(func(f *types.FileInfo) { f.Ino = 100 })
			b := makeFile(func(f *types.FileInfo) {
				f.Ino = 101
				tt.mod(f)
			})
			if Eligible(a, b, defaultPolicy()) {
				t.Error("expected not eligible")
			}
		})
	}
}

// TestEligibleSubSecondMtime tests that mtimes are compared in whole seconds.
func TestEligibleSubSecondMtime(t *testing.T) {
	a := makeFile(func(f *types.FileInfo) { f.Ino = 100; f.ModTime = time.Unix(1554498398, 100) })
	b := makeFile(func(f *types.FileInfo) { f.Ino = 101; f.ModTime = time.Unix(1554498398, 900) })

	if !Eligible(a, b, defaultPolicy()) {
		t.Error("sub-second mtime differences should not block eligibility")
	}
}

// TestEligibleContentOnly tests that content-only ignores mode, owner and mtime.
func TestEligibleContentOnly(t *testing.T) {
	a := makeFile(func(f *types.FileInfo) { f.Ino = 100 })
	b := makeFile(func(f *types.FileInfo) {
		f.Ino = 101
		f.Mode = 0o100755
		f.Uid = 0
		f.Gid = 0
		f.ModTime = time.Unix(1, 0)
	})

	p := defaultPolicy()
	if Eligible(a, b, p) {
		t.Error("expected not eligible without content-only")
	}
	p.ContentOnly = true
	if !Eligible(a, b, p) {
		t.Error("expected eligible with content-only")
	}
}

// TestEligibleContentOnlyKeepsSizeAndDevice tests content-only never relaxes
// size or device checks.
func TestEligibleContentOnlyKeepsSizeAndDevice(t *testing.T) {
	p := defaultPolicy()
	p.ContentOnly = true

	a := makeFile(func(f *types.FileInfo) { f.Ino = 100 })
	b := makeFile(func(f *types.FileInfo) { f.Ino = 101; f.Dev = 200 })
	c := makeFile(func(f *types.FileInfo) { f.Ino = 102; f.Size = 1 })

	if Eligible(a, b, p) {
		t.Error("different devices must never be eligible")
	}
	if Eligible(a, c, p) {
		t.Error("different sizes must never be eligible")
	}
}

// TestEligibleIgnoreTimestamp tests that ignore-timestamp only relaxes mtime.
func TestEligibleIgnoreTimestamp(t *testing.T) {
	p := defaultPolicy()
	p.IgnoreTimestamp = true

	a := makeFile(func(f *types.FileInfo) { f.Ino = 100 })
	b := makeFile(func(f *types.FileInfo) { f.Ino = 101; f.ModTime = time.Unix(1, 0) })
	c := makeFile(func(f *types.FileInfo) { f.Ino = 102; f.ModTime = time.Unix(1, 0); f.Uid = 0 })

	if !Eligible(a, b, p) {
		t.Error("mtime difference should be ignored")
	}
	if Eligible(a, c, p) {
		t.Error("owner difference must still block")
	}
}

// TestEligibleMinSize tests the minimum size threshold.
func TestEligibleMinSize(t *testing.T) {
	tests := []struct {
		size    int64
		minSize int64
		want    bool
	}{
		{size: 545, minSize: 1, want: true},
		{size: 545, minSize: 545, want: true},
		{size: 545, minSize: 546, want: false},
		{size: 0, minSize: 1, want: false},
		{size: 10, minSize: 4096, want: false},
	}

	for _, tt := range tests {
		a := makeFile(func(f *types.FileInfo) { f.Ino = 100; f.Size = tt.size })
		b := makeFile(func(f *types.FileInfo) { f.Ino = 101; f.Size = tt.size })
		p := config.Policy{MinSize: tt.minSize}
		if got := Eligible(a, b, p); got != tt.want {
			t.Errorf("size=%d minSize=%d: Eligible() = %v, want %v", tt.size, tt.minSize, got, tt.want)
		}
	}
}

// TestEligibleUnequalSizesNeverEligible tests unequal sizes under every policy.
func TestEligibleUnequalSizesNeverEligible(t *testing.T) {
	for _, contentOnly := range []bool{false, true} {
		for _, ignoreTS := range []bool{false, true} {
			p := config.Policy{MinSize: 1, ContentOnly: contentOnly, IgnoreTimestamp: ignoreTS}
			for _, delta := range []int64{1, 100, 4096} {
				a := makeFile(func(f *types.FileInfo) { f.Ino = 100 })
				b := makeFile(func(f *types.FileInfo) { f.Ino = 101; f.Size += delta })
				if Eligible(a, b, p) || Eligible(b, a, p) {
					t.Errorf("policy %+v, delta %d: unequal sizes eligible", p, delta)
				}
			}
		}
	}
}
