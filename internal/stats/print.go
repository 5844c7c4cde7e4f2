package stats

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/getsentry/callprof/internal/errorutil"
)

const (
	columnGap = 2
	trailDots = ".."
)

type Column struct {
	Title string
	Width int
}

var (
	DefaultFuncColumns = []Column{
		{Title: "name", Width: 36},
		{Title: "ncall", Width: 5},
		{Title: "tsub", Width: 8},
		{Title: "ttot", Width: 8},
		{Title: "tavg", Width: 8},
	}
	DefaultContextColumns = []Column{
		{Title: "name", Width: 13},
		{Title: "id", Width: 5},
		{Title: "tid", Width: 15},
		{Title: "ttot", Width: 8},
		{Title: "scnt", Width: 10},
	}

	funcColumns    = []string{"name", "ncall", "ttot", "tsub", "tavg"}
	contextColumns = []string{"name", "id", "tid", "ttot", "scnt"}
)

func validateColumns(columns []Column, allowed []string) error {
	for _, c := range columns {
		found := false
		for _, a := range allowed {
			if strings.ToLower(c.Title) == a {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: column %q", errorutil.ErrInvalidArgument, c.Title)
		}
		if len(c.Title) > c.Width {
			return fmt.Errorf("%w: column title %q exceeds width %d", errorutil.ErrInvalidArgument, c.Title, c.Width)
		}
	}
	return nil
}

// leftTrim keeps the tail of s, marking the cut with leading dots, and pads
// to width.
func leftTrim(s string, width int) string {
	if len(s) > width {
		s = s[len(s)-width:]
		return trailDots + s[min(len(trailDots), len(s)):]
	}
	return s + strings.Repeat(" ", width-len(s))
}

// rightTrim keeps the head of s, marking the cut with trailing dots, and
// pads to width.
func rightTrim(s string, width int) string {
	if len(s) > width {
		s = s[:width]
		return s[:max(len(s)-len(trailDots), 0)] + trailDots
	}
	return s + strings.Repeat(" ", width-len(s))
}

// formatSeconds prints seconds with the most decimals that fit in width,
// down to one.
func formatSeconds(x float64, width int) string {
	var s string
	for prec := 6; prec > 0; prec-- {
		s = strconv.FormatFloat(x, 'f', prec, 64)
		if len(s) <= width {
			break
		}
	}
	return s
}

func writeHeader(w *bufio.Writer, columns []Column) {
	for _, c := range columns {
		w.WriteString(c.Title)
		w.WriteString(strings.Repeat(" ", columnGap+c.Width-len(c.Title)))
	}
	w.WriteString("\n")
}

func writeRow(w *bufio.Writer, columns []Column, cell func(title string, width int) string) {
	for i, c := range columns {
		w.WriteString(cell(strings.ToLower(c.Title), c.Width))
		if i < len(columns)-1 {
			w.WriteString(strings.Repeat(" ", columnGap))
		}
	}
	w.WriteString("\n")
}

func callCount(calls, nonRecursive uint64, recursive bool) string {
	if recursive {
		return fmt.Sprintf("%d/%d", calls, nonRecursive)
	}
	return strconv.FormatUint(calls, 10)
}

func (f *Func) cell(title string, width int) string {
	switch title {
	case "name":
		return leftTrim(f.FullName, width)
	case "ncall":
		return rightTrim(callCount(f.CallCount, f.NonRecursiveCallCount, f.Recursive()), width)
	case "tsub":
		return rightTrim(formatSeconds(Seconds(f.SelfTime), width), width)
	case "ttot":
		return rightTrim(formatSeconds(Seconds(f.TotalTime), width), width)
	case "tavg":
		return rightTrim(formatSeconds(f.AvgTime()/1e9, width), width)
	}
	return ""
}

func (c *Child) cell(title string, width int) string {
	switch title {
	case "name":
		return leftTrim(c.FullName, width)
	case "ncall":
		return rightTrim(callCount(c.CallCount, c.NonRecursiveCallCount, c.Recursive()), width)
	case "tsub":
		return rightTrim(formatSeconds(Seconds(c.SelfTime), width), width)
	case "ttot":
		return rightTrim(formatSeconds(Seconds(c.TotalTime), width), width)
	case "tavg":
		return rightTrim(formatSeconds(c.AvgTime()/1e9, width), width)
	}
	return ""
}

// Print writes a fixed-width table of every function. Nil columns selects
// DefaultFuncColumns.
func (s *FuncStats) Print(out io.Writer, columns []Column) error {
	if columns == nil {
		columns = DefaultFuncColumns
	}
	if err := validateColumns(columns, funcColumns); err != nil {
		return err
	}
	if len(s.Funcs) == 0 {
		return nil
	}
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "\nClock type: %s\n", strings.ToUpper(s.ClockType.String()))
	fmt.Fprintf(w, "Ordered by: %s, %s\n\n", s.SortKey, s.Order)
	writeHeader(w, columns)
	for _, f := range s.Funcs {
		writeRow(w, columns, f.cell)
	}
	return w.Flush()
}

// PrintChildren writes the callees of f in the same layout as Print.
func (f *Func) PrintChildren(out io.Writer, columns []Column) error {
	if columns == nil {
		columns = DefaultFuncColumns
	}
	if err := validateColumns(columns, funcColumns); err != nil {
		return err
	}
	if len(f.Children) == 0 {
		return nil
	}
	w := bufio.NewWriter(out)
	w.WriteString("\n")
	writeHeader(w, columns)
	for i := range f.Children {
		writeRow(w, columns, f.Children[i].cell)
	}
	return w.Flush()
}
