package main

import "github.com/Mohsinsiddi/curvesim/cmd"

func main() {
	cmd.Execute()
}
