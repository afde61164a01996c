// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package pid generates and transcodes v3 publication identifiers.
//
// A v3 PID is a 128-bit random value written in a 48-symbol alphabet
// that omits vowels and glyphs easily confused with one another. The
// textual form is always 23 digits, least significant digit first.
// Documents may carry legacy v1/v2 identifiers alongside, but only v3
// PIDs are ever generated for new documents.
package pid

import (
	"math/big"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

const (
	// Alphabet holds the 48 symbols of the v3 encoding. Order matters:
	// a digit's value is its index here.
	Alphabet = "bcdfghjkmnpqrstvwxyzBCDFGHJKLMNPQRSTVWXYZ3456789"

	// Length is the fixed digit count of a textual v3 PID. 48^23 is
	// just over 2^128, so every 128-bit value fits.
	Length = 23
)

var base = big.NewInt(int64(len(Alphabet)))

// New returns a fresh v3 PID built from 128 random bits.
func New() (string, error) {
	uuid, err := utils.NewUUID()
	if err != nil {
		return "", errors.Trace(err)
	}
	raw := uuid.Raw()
	return Encode(new(big.Int).SetBytes(raw[:])), nil
}

// Encode renders a non-negative 128-bit value as a 23-digit v3 PID.
func Encode(value *big.Int) string {
	var s strings.Builder
	s.Grow(Length)
	rest := new(big.Int).Set(value)
	digit := new(big.Int)
	for i := 0; i < Length; i++ {
		rest.DivMod(rest, base, digit)
		s.WriteByte(Alphabet[digit.Int64()])
	}
	return s.String()
}

// Decode parses the textual form of a v3 PID back into its numeric
// value. The input must be exactly Length digits of the v3 alphabet.
func Decode(s string) (*big.Int, error) {
	if len(s) != Length {
		return nil, errors.NotValidf("pid %q", s)
	}
	value := new(big.Int)
	weight := big.NewInt(1)
	digit := new(big.Int)
	for i := 0; i < len(s); i++ {
		idx := strings.IndexByte(Alphabet, s[i])
		if idx < 0 {
			return nil, errors.NotValidf("pid %q", s)
		}
		value.Add(value, digit.SetInt64(int64(idx)).Mul(digit, weight))
		weight.Mul(weight, base)
	}
	return value, nil
}

// IsValid reports whether s has the shape of a v3 PID.
func IsValid(s string) bool {
	_, err := Decode(s)
	return err == nil
}
