// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package executor

import (
	"io"
	"sync"
	"unicode/utf8"

	"github.com/jeranaias/rigrun-toolguard/internal/security"
)

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest. Writes never fail, so a chatty process is not killed by EPIPE.
//
// With compact set, the buffer first rewrites what it holds to make room
// and only drops data when the compacted content still fills it. compact
// must work rune by rune so that compacting in pieces gives the same bytes
// as compacting the whole.
type cappedBuffer struct {
	mu       sync.Mutex
	buf      []byte
	limit    int
	overflow bool
	compact  func([]byte) []byte
	settled  int // prefix already compacted
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

// newOutputBuffer returns a buffer that strips the characters CleanText
// removes while capturing, so the limit counts only text that will be kept.
func newOutputBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{
		limit: limit,
		compact: func(p []byte) []byte {
			return []byte(security.CleanText(string(p)))
		},
	}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	for len(p) > 0 && !b.overflow {
		room := b.limit - len(b.buf)
		if room <= 0 {
			if !b.compactLocked() {
				b.overflow = true
			}
			continue
		}
		chunk := min(room, len(p))
		b.buf = append(b.buf, p[:chunk]...)
		p = p[chunk:]
	}
	return n, nil
}

// compactLocked rewrites the unsettled part of the buffer, leaving a
// trailing partial rune for the next write to complete. It reports whether
// any room was freed.
func (b *cappedBuffer) compactLocked() bool {
	if b.compact == nil {
		return false
	}
	end := len(b.buf)
	for i := end - 1; i >= b.settled && i >= end-utf8.UTFMax; i-- {
		if utf8.RuneStart(b.buf[i]) {
			if !utf8.FullRune(b.buf[i:]) {
				end = i
			}
			break
		}
	}

	out := b.compact(b.buf[b.settled:end])
	if len(out) >= end-b.settled {
		b.settled = end
		return false
	}
	tail := append([]byte(nil), b.buf[end:]...)
	b.buf = append(append(b.buf[:b.settled], out...), tail...)
	b.settled += len(out)
	return true
}

// ReadFrom drains r into the buffer until EOF or a read error.
func (b *cappedBuffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			b.Write(chunk[:n])
			total += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
}

// Snapshot returns the captured bytes and whether anything was dropped.
func (b *cappedBuffer) Snapshot() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...), b.overflow
}
