package theme

import (
	"fmt"
)

// Banner returns the corvid-approved startup banner.
func Banner() string {
	const cyan = "\033[36m"
	const yellow = "\033[33m"
	const reset = "\033[0m"

	art := "" +
		"      " + cyan + "MAGPIE" + reset + "\n" +
		"   _   ,_,   _\n" +
		"  / `'=) (='` \\\n" +
		" /.-.-.\\ /.-.-.\\\n" +
		yellow + " ───────────────\n" + reset +
		"  hoards your timeline, shiny bits and all\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
