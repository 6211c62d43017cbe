// Command net-relay is the process entrypoint: a single binary with no
// required flags that runs the SOCKS5 and HTTP CONNECT listeners
// alongside the management API.
package main

import "github.com/Annihilater/net-relay/cmd/net-relay/cmd"

func main() {
	cmd.Execute()
}
