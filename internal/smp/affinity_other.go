//go:build !linux

package smp

func pinToCPU(int) error { return nil }
