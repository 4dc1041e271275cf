package main

import "example.com/backstage/services/giftcard/cmd"

func main() {
	cmd.Execute()
}
