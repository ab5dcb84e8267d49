package trial

import "os/exec"

func killProcessGroup(_ *exec.Cmd) {}
