package impact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
)

// table prints aligned columns on a terminal and tab separated values
// otherwise, so that output pipes into cut or awk.
type table struct {
	w     io.Writer
	tw    *tabwriter.Writer
	aware bool
}

func newTable(out io.Writer, headers ...string) *table {
	t := &table{w: out}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		t.tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		t.w = t.tw
		t.aware = true
	}
	if len(headers) > 0 && t.aware {
		t.row(headers...)
	}
	return t
}

func (t *table) row(cells ...string) {
	for i, c := range cells {
		cells[i] = strings.NewReplacer("\t", " ", "\n", " ").Replace(c)
	}
	fmt.Fprintln(t.w, strings.Join(cells, "\t"))
}

func (t *table) flush() error {
	if t.tw != nil {
		return t.tw.Flush()
	}
	return nil
}

func jsonReader(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}
