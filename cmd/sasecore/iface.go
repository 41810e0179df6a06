// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// verifyInterface confirms iface exists and is up before the ingress
// source binds to it, turning a typo'd interface name into an immediate,
// readable startup error instead of a silent empty capture.
func verifyInterface(iface string) error {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("interface %s not found: %w", iface, err)
	}
	attrs := link.Attrs()
	if attrs.Flags&netlink.FlagUp == 0 {
		return fmt.Errorf("interface %s is down", iface)
	}
	return nil
}

// enterNamespace locks the calling OS thread, switches it into the named
// network namespace, and returns a restore func that switches back and
// unlocks the thread. Callers must run this and everything depending on
// the namespace switch from the same goroutine, and must not let that
// goroutine's thread be reused for unrelated work before restore runs.
func enterNamespace(name string) (func(), error) {
	runtime.LockOSThread()

	original, err := netns.Get()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("getting current network namespace: %w", err)
	}

	target, err := netns.GetFromName(name)
	if err != nil {
		original.Close()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("opening network namespace %s: %w", name, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		original.Close()
		runtime.UnlockOSThread()
		return nil, fmt.Errorf("switching into network namespace %s: %w", name, err)
	}

	return func() {
		defer runtime.UnlockOSThread()
		defer original.Close()
		_ = netns.Set(original)
	}, nil
}
