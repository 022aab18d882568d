//go:build !unix

package execution

import "os/exec"

// ConfigureProcess installs a hard kill as the cancellation of the child process
func ConfigureProcess(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
}
