// Package stats collects run counters from the walker and matcher and renders
// the end-of-run report.
//
// The Collector is owned by a single run and passed explicitly to the components
// that notify it; there is no package-level state.
package stats

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ivoronin/linkdog/internal/types"
)

// Collector accumulates run statistics. Not safe for concurrent use.
type Collector struct {
	Directories      int
	RegularFiles     int
	Comparisons      int
	LinkedThisRun    int
	LinkedPreviously int
	RollbackFailures int
	BytesThisRun     int64
	BytesPreviously  int64

	pairs    []types.LinkPair
	previous map[string]*types.LinkGroup
	start    time.Time
	now      func() time.Time
}

// New creates a Collector with the clock started.
func New() *Collector {
	return &Collector{
		previous: make(map[string]*types.LinkGroup),
		start:    time.Now(),
		now:      time.Now,
	}
}

func (c *Collector) DirectoryVisited()    { c.Directories++ }
func (c *Collector) RegularFileVisited()  { c.RegularFiles++ }
func (c *Collector) ComparisonPerformed() { c.Comparisons++ }
func (c *Collector) RollbackFailed()      { c.RollbackFailures++ }

// HardlinkCreated records a merge performed this run.
func (c *Collector) HardlinkCreated(source, dest string, size int64) {
	c.LinkedThisRun++
	c.BytesThisRun += size
	c.pairs = append(c.pairs, types.LinkPair{Source: source, Dest: dest, Size: size})
}

// PreexistingHardlinkFound records dest as already sharing source's inode.
func (c *Collector) PreexistingHardlinkFound(source, dest string, size int64) {
	c.LinkedPreviously++
	c.BytesPreviously += size
	g, ok := c.previous[source]
	if !ok {
		g = &types.LinkGroup{Source: source, Size: size}
		c.previous[source] = g
	}
	g.Dests = append(g.Dests, dest)
}

// Pairs returns merges in the order they were performed.
func (c *Collector) Pairs() []types.LinkPair { return c.pairs }

// Previous returns pre-existing link groups sorted by source path.
func (c *Collector) Previous() types.LinkGroups {
	groups := make([]*types.LinkGroup, 0, len(c.previous))
	for _, g := range c.previous {
		groups = append(groups, g)
	}
	return types.NewLinkGroups(groups)
}

// Elapsed returns the time since the collector was created.
func (c *Collector) Elapsed() time.Duration { return c.now().Sub(c.start) }

// String implements fmt.Stringer for the progress display.
func (c *Collector) String() string {
	return fmt.Sprintf("Scanned %d dirs, %d files, %d comparisons, linked %d (%s) in %.1fs",
		c.Directories, c.RegularFiles, c.Comparisons, c.LinkedThisRun,
		humanize.IBytes(uint64(c.BytesThisRun)), c.Elapsed().Seconds())
}

// ReportOptions selects optional report sections.
type ReportOptions struct {
	PrintPrevious bool
	DryRun        bool
}

// Report writes the end-of-run statistics.
func (c *Collector) Report(w io.Writer, opts ReportOptions) error {
	p := &printer{w: w}
	p.line("")
	p.line("Hard linking statistics:")

	if prev := c.Previous(); opts.PrintPrevious && prev.Len() > 0 {
		p.line("Files previously hardlinked:")
		for _, g := range prev.Items() {
			p.line("Hardlinked together: %s", g.Source)
			for _, d := range g.Dests {
				p.line("                   : %s", d)
			}
			p.line("Size per file: %d  Total saved: %d", g.Size, g.Size*int64(len(g.Dests)))
		}
		p.line("")
	}

	if len(c.pairs) > 0 {
		if opts.DryRun {
			p.line("Statistics reflect what would have happened if not a dry run")
		}
		p.line("Files hardlinked this run:")
		for _, pair := range c.pairs {
			p.line("Hardlinked: %s", pair.Source)
			p.line("        to: %s", pair.Dest)
		}
		p.line("")
	}

	total := c.BytesThisRun + c.BytesPreviously
	p.line("Directories           : %d", c.Directories)
	p.line("Regular files         : %d", c.RegularFiles)
	p.line("Comparisons           : %d", c.Comparisons)
	p.line("Hardlinked this run   : %d", c.LinkedThisRun)
	p.line("Total hardlinks       : %d", c.LinkedThisRun+c.LinkedPreviously)
	p.line("Bytes saved this run  : %d (%s)", c.BytesThisRun, humanize.IBytes(uint64(c.BytesThisRun)))
	p.line("Total bytes saved     : %d (%s)", total, humanize.IBytes(uint64(total)))
	if c.RollbackFailures > 0 {
		p.line("Rollback failures     : %d (manual recovery required)", c.RollbackFailures)
	}
	p.line("Total run time        : %.3f seconds", c.Elapsed().Seconds())
	return p.err
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}
