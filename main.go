package main

import "github.com/Mohsinsiddi/erc20/cmd"

func main() {
	cmd.Execute()
}
