package main

import "github.com/creativeprojects/imapfilter/cmd"

// set at build time with -ldflags
var (
	version = "0.1.0-dev"
	commit  = ""
	date    = ""
	builtBy = ""
)

func main() {
	cmd.Execute(version, commit, date, builtBy)
}
