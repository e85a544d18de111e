package main

import "github.com/vietddude/zerofail/internal/cli"

func main() {
	cli.Execute()
}
