package main

import "optin-backend/cmd"

func main() {
	cmd.Run()
}
