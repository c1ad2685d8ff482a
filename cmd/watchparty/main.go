package main

import "github.com/weiawesome/wes-io-watchparty/internal/cli"

func main() {
	cli.Execute()
}
