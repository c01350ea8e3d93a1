// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook implements the webhook gateway: HMAC-verified inbound
// triggers and outbound event delivery with a fixed retry schedule.
package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Headers carried by inbound and outbound webhook requests.
const (
	SignatureHeader = "X-Webhook-Signature"
	EventHeader     = "X-Webhook-Event"
	DeliveryHeader  = "X-Webhook-Delivery"
)

const signaturePrefix = "sha256="

var (
	// ErrMissingSignature is returned when a request carries no signature.
	ErrMissingSignature = errors.New("missing " + SignatureHeader + " header")

	// ErrInvalidSignature is returned when the signature does not match the body.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Sign returns the signature header value for body: "sha256=" followed by the
// hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	return signaturePrefix + hex.EncodeToString(digest(secret, body))
}

// Verify checks a presented signature header against body. The hex digest is
// compared case-insensitively in constant time.
func Verify(header string, body []byte, secret string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	if secret == "" {
		return ErrInvalidSignature
	}

	presented, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return ErrInvalidSignature
	}
	got, err := hex.DecodeString(strings.ToLower(presented))
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(got, digest(secret, body)) {
		return ErrInvalidSignature
	}
	return nil
}

func digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// NewSecret returns a random 32-byte secret, hex encoded.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
