// Command mhk joins a multihack room and keeps the current directory in sync.
package main

import "github.com/bolasblack/multihack/internal/cli"

func main() {
	cli.Execute()
}
