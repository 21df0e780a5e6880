/*
Copyright © 2023 Glossopoeia
*/
package main

import "github.com/glossopoeia/bobatrace/cmd"

func main() {
	cmd.Execute()
}
