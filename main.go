package main

import "github.com/ekaya-inc/querygate/cmd"

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cmd.Execute(Version)
}
