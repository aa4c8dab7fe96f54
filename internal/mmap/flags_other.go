//go:build unix && !linux

package mmap

import "golang.org/x/sys/unix"

const anonFlags = unix.MAP_ANON | unix.MAP_PRIVATE
