// Copyright 2015 Matthew Holt and The Caddy Authors
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

package pan

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"

	"github.com/openwisun/wisun-br/ieee802154"
	wisunerr "github.com/openwisun/wisun-br/wisunerr"
)

// WP-IE nested sub-IEs this module observes on a peer's PAN/PAN
// Config advertisement (Wi-SUN FAN 1.1 §6.3.4). This BR originates its
// own copies of all four -- NetworkName, PANID, PANVersion and the GTK
// table -- so these are read-only diagnostics, never an input to this
// state (spec.md §4.4: PAN identity and version belong to the border
// router).
const (
	subPAN     uint8 = 4
	subNetName uint8 = 5
	subPANVer  uint8 = 6
	subGTKHash uint8 = 3
)

func decodePANIE(content []byte) (panID uint16, err error) {
	if len(content) < 2 {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "PAN-IE shorter than 2 bytes", nil)
	}
	return binary.LittleEndian.Uint16(content[0:2]), nil
}

func decodePANVersionIE(content []byte) (version uint16, err error) {
	if len(content) < 2 {
		return 0, wisunerr.NewError(wisunerr.KindTruncated, "PANVER-IE shorter than 2 bytes", nil)
	}
	return binary.LittleEndian.Uint16(content[0:2]), nil
}

func decodeGTKHashIE(content []byte) (hashes [KeySlots][8]byte, err error) {
	if len(content) < KeySlots*8 {
		return hashes, wisunerr.NewError(wisunerr.KindTruncated, "GTKHASH-IE shorter than 32 bytes", nil)
	}
	for i := 0; i < KeySlots; i++ {
		copy(hashes[i][:], content[i*8:i*8+8])
	}
	return hashes, nil
}

// PeerAdvertisement is a snapshot of the PAN identity a neighbor most
// recently advertised in its own PAN-IE/NETNAME-IE/PANVER-IE, kept for
// diagnostic comparison against this border router's own state (spec.md
// §4.4 invariant: PANVersion is this node's counter, not one learned
// from the network).
type PeerAdvertisement struct {
	PANID       uint16
	NetworkName string
	PANVersion  uint16
}

// ObservePeerAdvertisement records a peer's PAN-IE/NETNAME-IE/PANVER-IE
// content and reports whether it disagrees with this border router's
// own PAN identity -- a split-PAN or stale-peer symptom worth logging,
// never something this state corrects itself against.
func (s *State) ObservePeerAdvertisement(adv PeerAdvertisement) (mismatch bool) {
	s.LastPeerAdvertisement = adv
	return adv.PANID != s.PANID ||
		adv.NetworkName != s.NetworkName ||
		uint32(adv.PANVersion) != s.PANVersion
}

// GTKHashMismatch compares a peer's advertised GTKHASH-IE (4 truncated
// SHA-256 digests, one per GTK slot) against this border router's own
// active keys, reporting whether the peer's view of the group key
// table has fallen behind.
func (s *State) GTKHashMismatch(peerHashes [KeySlots][8]byte) bool {
	ownSlots := s.Keys.Slots()
	for i := 0; i < KeySlots; i++ {
		sum := sha256.Sum256(ownSlots[i][:])
		if !bytes.Equal(sum[:8], peerHashes[i][:]) {
			return true
		}
	}
	return false
}

// ApplyAdvertisementIEs decodes a received frame's WP-IE for the
// PAN/NETNAME/PANVER/GTKHASH sub-IEs a PA/PC/LPA/LPC advertisement
// carries, updating LastPeerAdvertisement and reporting whether either
// the PAN identity or the GTK table the peer sees has drifted from
// this border router's own. A frame with no WP-IE, or a WP-IE missing
// some of these sub-IEs, simply leaves the corresponding comparison
// unreported (false).
func (s *State) ApplyAdvertisementIEs(payloadIEs []byte) (advertisementMismatch, gtkHashMismatch bool, err error) {
	subIEs, found, err := ieee802154.ParseWPIE(payloadIEs)
	if err != nil || !found {
		return false, false, err
	}

	adv := s.LastPeerAdvertisement
	haveAdv := false
	for _, sub := range subIEs {
		switch sub.SubID {
		case subPAN:
			panID, err := decodePANIE(sub.Content)
			if err != nil {
				return false, false, err
			}
			adv.PANID = panID
			haveAdv = true
		case subNetName:
			adv.NetworkName = string(sub.Content)
			haveAdv = true
		case subPANVer:
			version, err := decodePANVersionIE(sub.Content)
			if err != nil {
				return false, false, err
			}
			adv.PANVersion = version
			haveAdv = true
		case subGTKHash:
			hashes, err := decodeGTKHashIE(sub.Content)
			if err != nil {
				return false, false, err
			}
			gtkHashMismatch = s.GTKHashMismatch(hashes)
		}
	}
	if haveAdv {
		advertisementMismatch = s.ObservePeerAdvertisement(adv)
	}
	return advertisementMismatch, gtkHashMismatch, nil
}
