package main

import "github.com/josephgoksu/KnowledgeWing/cmd"

func main() {
	cmd.Execute()
}
