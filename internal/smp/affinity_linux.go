//go:build linux

package smp

import "golang.org/x/sys/unix"

// pinToCPU restricts the calling thread to cpu.
func pinToCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
