package main

import (
	"os/exec"
	"runtime"
)

// openBrowser opens u in the user's default browser without waiting for it.
func openBrowser(u string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", u)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u)
	default:
		cmd = exec.Command("xdg-open", u)
	}

	return cmd.Start()
}
