// properties_validation.go: Key validation for the properties parser
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package propindex

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/agilira/go-errors"
)

// validatePropertiesKey rejects keys that cannot be a property id. An empty
// key only costs its own line; any other bad key marks the whole resource
// as malformed.
func validatePropertiesKey(key string, lineNum int) error {
	if key == "" {
		return errors.New(ErrCodeEntrySkipped,
			fmt.Sprintf("invalid properties key at line %d: key cannot be empty", lineNum)).
			WithContext("line", lineNum)
	}

	if !utf8.ValidString(key) {
		return errors.New(ErrCodeResourceMalformed,
			fmt.Sprintf("invalid properties key at line %d: key is not valid UTF-8", lineNum)).
			WithContext("line", lineNum)
	}

	for _, char := range key {
		if char == '\x00' {
			return errors.New(ErrCodeResourceMalformed,
				fmt.Sprintf("invalid properties key at line %d: null byte not allowed in keys", lineNum)).
				WithContext("line", lineNum)
		}
		// Escaped tabs and spaces are legal key characters
		if char != '\t' && char != ' ' && !unicode.IsPrint(char) {
			return errors.New(ErrCodeResourceMalformed,
				fmt.Sprintf("invalid properties key at line %d: non-printable character not allowed in keys", lineNum)).
				WithContext("line", lineNum)
		}
	}

	return nil
}
