package main

import "example.com/backstage/services/provenance/cmd"

func main() {
	cmd.Execute()
}
