// Copyright (c) 2025 The passgate authors
//
// This file is part of passgate.
//
// passgate is licensed under the GNU Affero General Public License v3.0.
// See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html

// Package ceremony implements the server side of the WebAuthn two-step
// challenge/response protocol for registering and authenticating public-key
// credentials.
//
// Each ceremony runs as options -> verify. The options step generates a
// random challenge and parks it in a ChallengeLedger keyed by (handle,
// ceremony kind); the verify step atomically consumes that challenge and
// validates the authenticator's proof. A challenge is single-use: it is
// removed on the first verify attempt regardless of outcome, so a failed
// verification forces the client to request fresh options.
//
// Attestation policy defaults to "none": the credential public key is
// trusted on first use and no attestation chain is verified. This is a
// deliberate, documented limitation appropriate for consumer passkey
// deployments; set Config.AttestationPreference to "indirect" or "direct"
// to request stronger conveyance from authenticators.
package ceremony
