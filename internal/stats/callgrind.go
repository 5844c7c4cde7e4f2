package stats

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

// CallgrindHeader fills the preamble of a callgrind file.
type CallgrindHeader struct {
	Creator string
	PID     int
	Command []string
}

// WriteCallgrind exports the stats in the callgrind format read by
// KCachegrind and friends. Costs are in microseconds.
func (s *FuncStats) WriteCallgrind(out io.Writer, h CallgrindHeader) error {
	w := bufio.NewWriter(out)
	lines := []string{
		"version: 1",
		"creator: " + h.Creator,
		fmt.Sprintf("pid: %d", h.PID),
		"cmd:  " + strings.Join(h.Command, " "),
		"part: 1",
		"",
		"events: Ticks",
	}

	files := []string{""}
	names := []string{""}
	seen := make(map[uint32]struct{})
	define := func(index uint32, name, module string, line int) {
		if _, ok := seen[index]; ok {
			return
		}
		seen[index] = struct{}{}
		files = append(files, fmt.Sprintf("fl=(%d) %s", index, module))
		names = append(names, fmt.Sprintf("fn=(%d) %s %s:%d", index, name, module, line))
	}
	for _, f := range s.Funcs {
		define(f.Index, f.Name, f.Module, f.Line)
		for _, c := range f.Children {
			define(c.Index, c.Name, c.Module, c.Line)
		}
	}
	lines = append(lines, files...)
	lines = append(lines, names...)

	for _, f := range s.Funcs {
		lines = append(lines,
			"",
			fmt.Sprintf("fl=(%d)", f.Index),
			fmt.Sprintf("fn=(%d)", f.Index),
			fmt.Sprintf("%d %d", f.Line, time.Duration(f.SelfTime).Microseconds()),
		)
		for _, c := range f.Children {
			lines = append(lines,
				fmt.Sprintf("cfl=(%d)", c.Index),
				fmt.Sprintf("cfn=(%d)", c.Index),
				fmt.Sprintf("calls=%d 0", c.CallCount),
				fmt.Sprintf("0 %d", time.Duration(c.TotalTime).Microseconds()),
			)
		}
	}
	w.WriteString(strings.Join(lines, "\n"))
	return w.Flush()
}
