package main

import "github.com/r3dhorse/task-management-system-sub000/services/api/cli"

func main() {
	cli.Execute()
}
