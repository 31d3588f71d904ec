/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/pkgindex/backend-go/cmd"

func main() {
	cmd.Execute()
}
