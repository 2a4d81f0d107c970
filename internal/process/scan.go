package process

import (
	"os"
	"strconv"
	"strings"
)

// scanner abstracts /proc enumeration so tests can substitute a fake
// process table instead of scanning the real filesystem.
type scanner interface {
	pids() ([]int, error)
	cmdline(pid int) ([]string, error)
}

type procScanner struct{}

func (procScanner) pids() ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(entries))
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		out = append(out, pid)
	}
	return out, nil
}

func (procScanner) cmdline(pid int) ([]string, error) {
	raw, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/cmdline")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// find scans every running process via s and returns the first whose argv
// both identifies a known backend and binds the requested port. A pid that
// exits mid-scan (cmdline read failing) is silently skipped, matching how
// /proc races are handled everywhere else in process inspection code.
func find(s scanner, port int) (Info, bool) {
	pids, err := s.pids()
	if err != nil {
		return Info{}, false
	}
	for _, pid := range pids {
		argv, err := s.cmdline(pid)
		if err != nil || len(argv) == 0 {
			continue
		}
		info, ok := parseArgvInfo(pid, argv[0], argv)
		if !ok {
			continue
		}
		if info.Port != port {
			continue
		}
		return info, true
	}
	return Info{}, false
}

// alive reports whether pid still exists. On Linux, os.FindProcess never
// fails, so a signal-0 probe is the real liveness check.
func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscallSignal0) == nil
}
