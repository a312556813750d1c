//go:build linux

/*
 * Copyright (c) 2018-2024, juleastore. All rights reserved.
 */
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// daemonizeLinux performs the setsid/chdir("/")/redirect-std-streams
// detach described in spec.md §4.G and §7, using a re-exec in place of
// the double fork. It must be called before binding the listener.
//
// Go cannot fork() a running multi-threaded process safely (the runtime
// has no post-fork hook to quiesce other OS threads), so unlike the
// reference daemon's single in-process fork(), the detach re-execs
// itself once with JULEASTORE_DETACHED=1 set, then exits the parent.
// The child performs setsid/chdir/redirect and continues as the real
// daemon. This preserves the observable contract (the original process
// exits 0 immediately, the daemon keeps running detached from the
// controlling terminal) without an unsafe raw fork.
func daemonizeLinux() error {
	if os.Getenv("JULEASTORE_DETACHED") == "1" {
		return finishDetach()
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemon: resolve executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), "JULEASTORE_DETACHED=1")
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open /dev/null: %w", err)
	}
	defer devnull.Close()
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devnull, devnull, devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: start detached child: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Daemon started as process %d.\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}

// finishDetach runs inside the re-exec'd child: chdir("/") and redirect
// of std streams, mirroring the reference daemon's post-fork steps
// (setsid already happened via SysProcAttr in the parent's exec.Cmd).
func finishDetach() error {
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("daemon: chdir /: %w", err)
	}
	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("daemon: open /dev/null: %w", err)
	}
	defer devnull.Close()
	fd := int(devnull.Fd())
	_ = syscall.Dup2(fd, int(os.Stdin.Fd()))
	_ = syscall.Dup2(fd, int(os.Stdout.Fd()))
	_ = syscall.Dup2(fd, int(os.Stderr.Fd()))
	return nil
}
