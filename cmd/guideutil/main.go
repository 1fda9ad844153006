// Command guideutil builds, ingests, and queries CRISPR guide indexes.
package main

import "github.com/genomix/crispor/cmd/guideutil/cmd"

func main() {
	cmd.Run()
}
