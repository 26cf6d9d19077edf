// The main package for the crawl-archiver executable.
package main

import (
	"github.com/JakeFAU/crawl-archiver/cmd"
)

func main() {
	cmd.Execute()
}
