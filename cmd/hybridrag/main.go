package main

import "github.com/0xcro3dile/hybridrag-go/internal/cli"

func main() {
	cli.Execute()
}
