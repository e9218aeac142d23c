package main

import "github.com/framepace/compositor"

func main() {
	compositor.Main()
}
