// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package runtimecache

import (
	"testing"
	"time"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAliveSeqRoundTrip(t *testing.T) {
	c := openTestCache(t)

	if _, ok, err := c.AliveSeq(); err != nil || ok {
		t.Fatalf("fresh cache: ok=%v err=%v, want absent", ok, err)
	}

	if err := c.SetAliveSeq(0); err != nil {
		t.Fatalf("SetAliveSeq: %v", err)
	}
	seq, ok, err := c.AliveSeq()
	if err != nil || !ok || seq != 0 {
		t.Fatalf("AliveSeq = %d, %v, %v; want 0, true, nil", seq, ok, err)
	}

	if err := c.SetAliveSeq(41); err != nil {
		t.Fatalf("SetAliveSeq: %v", err)
	}
	seq, _, _ = c.AliveSeq()
	if seq != 41 {
		t.Fatalf("AliveSeq = %d, want 41", seq)
	}
}

func TestBootTimeRoundTrip(t *testing.T) {
	c := openTestCache(t)

	if _, ok, err := c.BootTime(); err != nil || ok {
		t.Fatalf("fresh cache: ok=%v err=%v, want absent", ok, err)
	}

	boot := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	if err := c.SetBootTime(boot); err != nil {
		t.Fatalf("SetBootTime: %v", err)
	}

	got, ok, err := c.BootTime()
	if err != nil || !ok {
		t.Fatalf("BootTime: ok=%v err=%v", ok, err)
	}
	if !got.Equal(boot) {
		t.Fatalf("BootTime = %v, want %v", got, boot)
	}
}

func TestOnDiskCachePersists(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.SetAliveSeq(7); err != nil {
		t.Fatalf("SetAliveSeq: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = c2.Close() }()

	seq, ok, err := c2.AliveSeq()
	if err != nil || !ok || seq != 7 {
		t.Fatalf("after reopen: seq=%d ok=%v err=%v, want 7", seq, ok, err)
	}
}
