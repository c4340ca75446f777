/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package local

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/providenetwork/merkletree"
)

// txContent is a sealed transaction hash as a leaf of a block's merkle tree
type txContent struct {
	hash string
}

// CalculateHash returns the sha256 digest of the decoded transaction hash
func (tc *txContent) CalculateHash() ([]byte, error) {
	if tc.hash == "" {
		return nil, errors.New("tree content requires a transaction hash")
	}

	raw, err := hex.DecodeString(tc.hash)
	if err != nil {
		return nil, err
	}

	digest := sha256.Sum256(raw)
	return digest[:], nil
}

// Equals returns true if the given content is the same transaction
func (tc *txContent) Equals(other merkletree.Content) (bool, error) {
	h0, err := tc.CalculateHash()
	if err != nil {
		return false, err
	}

	h1, err := other.CalculateHash()
	if err != nil {
		return false, err
	}

	return bytes.Equal(h0, h1), nil
}
