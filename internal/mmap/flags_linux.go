package mmap

import "golang.org/x/sys/unix"

// Reserving large anonymous ranges must not count against the commit limit.
const anonFlags = unix.MAP_ANON | unix.MAP_PRIVATE | unix.MAP_NORESERVE
