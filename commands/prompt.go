package commands

import (
	"fmt"
	"os"
	"strings"
)

const promptMarker = "---$ "

// promptHeader renders the line printed above the input line, e.g.
// "-(pipesh)-[~/src]".
func promptHeader(name, cwd, home string, c *ColorPrinter) string {
	if home != "" && (cwd == home || strings.HasPrefix(cwd, home+string(os.PathSeparator))) {
		cwd = "~" + strings.TrimPrefix(cwd, home)
	}

	return fmt.Sprintf("-(%s)-[%s]",
		c.Sprintf(ColorBoldGreen, "%s", name),
		c.Sprintf(ColorBoldBlue, "%s", cwd))
}
