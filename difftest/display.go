package difftest

import (
	"fmt"
	"io"
)

// Display writes the trace buffers and the DUT and REF banks of the last
// compared tick to the output of the controller.
func (c *Controller) Display() {
	c.DisplayTo(c.out)
}

// DisplayTo writes the failure dump to w. Words that differ are marked.
func (c *Controller) DisplayTo(w io.Writer) {
	c.trace.Display(w, c.id)

	dut := c.layout.Encode(make([]uint64, 0, c.layout.Size()), c.dut)
	ref := c.layout.Encode(make([]uint64, 0, c.layout.Size()), c.ref)

	_, _ = fmt.Fprintf(w, "\n============== DUT/REF Registers (Core %d) ==============\n", c.id)
	for i := range dut {
		mark := ""
		if dut[i] != ref[i] {
			mark = " <-- different"
		}
		_, _ = fmt.Fprintf(w, "%10s: DUT %016x REF %016x%s\n",
			c.layout.FieldName(i), dut[i], ref[i], mark)
	}

	_, _ = fmt.Fprintf(w, "tick %d, last commit at tick %d, %d instructions confirmed\n",
		c.ticks, c.lastCommit, c.instrCnt)
	if c.err != nil {
		_, _ = fmt.Fprintf(w, "%v\n", c.err)
	}
}
