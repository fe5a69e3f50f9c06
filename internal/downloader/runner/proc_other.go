//go:build !unix

package runner

import "os/exec"

func configureProcess(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}
}
