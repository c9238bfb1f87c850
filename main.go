package main

import "github.com/nhirsama/Goster-Ring/cli"

func main() {
	cli.Run()
}
