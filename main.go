package main

import "github.com/dnitsch/oidc-cred-provider/cmd"

func main() {
	cmd.Execute()
}
