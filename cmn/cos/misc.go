// Package cos provides common low-level types and utilities for all aistore projects
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"errors"
	"io"
	"unsafe"
)

// MLCG32 seeds the xxhash digest used by GenTie/HashK8sProxyID-style helpers;
// any fixed odd seed works, this one matches the teacher's choice.
const MLCG32 = uint32(2654435761)

const (
	letterBytes   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	letterIdxBits = 6
	letterIdxMask = 1<<letterIdxBits - 1
	LenRunes      = len(letterBytes)
)

var LetterRunes = []byte(letterBytes)

// Plural returns "s" when n != 1, for pluralizing error messages.
func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

// IsEOF reports whether err is (or wraps) io.EOF or io.ErrUnexpectedEOF.
func IsEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// CryptoRandS returns a cryptographically random alphanumeric string of
// length n, used to mint daemon/worker IDs.
func CryptoRandS(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err) // entropy source failure is unrecoverable
	}
	for i := range b {
		b[i] = letterBytes[int(b[i])&letterIdxMask%len(letterBytes)]
	}
	return string(b)
}

// UnsafeB and UnsafeS convert between string and []byte without copying.
// Callers must not mutate the returned slice, nor the source string's
// backing array, for as long as either view is alive.
func UnsafeB(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
