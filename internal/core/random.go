/*******************************************************************************
* Copyright 2023 Stefan Majewsky <majewsky@gmx.net>
* SPDX-License-Identifier: GPL-3.0-only
* Refer to the file "LICENSE" for details.
*******************************************************************************/

package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	lowercaseLetters = "abcdefghijklmnopqrstuvwxyz"
	uppercaseLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits           = "0123456789"
	// PasswordSymbols is the set of punctuation characters used in generated
	// passwords.
	PasswordSymbols = "@#$%^&*-_+=[]{}|\\:,.?/`~();"

	// MinPasswordLength is the length of passwords generated by
	// GeneratePassword if a smaller length is requested.
	MinPasswordLength = 16
)

// RandomASCIIString returns a random string of lowercase ASCII letters.
// It panics if the system's randomness source fails.
func RandomASCIIString(length int) string {
	buf := make([]byte, length)
	for idx := range buf {
		buf[idx] = randomChoice(lowercaseLetters)
	}
	return string(buf)
}

// GeneratePassword returns a random password that contains at least one
// lowercase letter, uppercase letter, digit and symbol each.
func GeneratePassword(length int) string {
	if length < MinPasswordLength {
		length = MinPasswordLength
	}
	all := lowercaseLetters + uppercaseLetters + digits + PasswordSymbols
	buf := []byte{
		randomChoice(lowercaseLetters),
		randomChoice(uppercaseLetters),
		randomChoice(digits),
		randomChoice(PasswordSymbols),
	}
	for len(buf) < length {
		buf = append(buf, randomChoice(all))
	}

	//Fisher-Yates shuffle, so that the guaranteed characters are not always
	//at the start
	for idx := len(buf) - 1; idx > 0; idx-- {
		other := randomInt(idx + 1)
		buf[idx], buf[other] = buf[other], buf[idx]
	}
	return string(buf)
}

func randomChoice(alphabet string) byte {
	return alphabet[randomInt(len(alphabet))]
}

func randomInt(limit int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		panic(fmt.Sprintf("could not generate randomness: %s", err.Error()))
	}
	return int(n.Int64())
}
