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

package controlapi

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openwisun/wisun-br/ieee802154"
)

func TestValidateOptionalEUI64Empty(t *testing.T) {
	addr, ok, err := validateOptionalEUI64(nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, ieee802154.Addr{}, addr)
}

func TestValidateOptionalEUI64FoldsBroadcast(t *testing.T) {
	broadcast := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	addr, ok, err := validateOptionalEUI64(broadcast)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, ieee802154.Addr{}, addr)
}

func TestValidateOptionalEUI64WrongLength(t *testing.T) {
	_, _, err := validateOptionalEUI64([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestValidateEUI64RequiresPresent(t *testing.T) {
	_, err := validateEUI64(nil)
	require.Error(t, err)

	addr, err := validateEUI64([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)
	require.Equal(t, ieee802154.Addr{1, 2, 3, 4, 5, 6, 7, 8}, addr)
}

func TestValidateOptionalGTK(t *testing.T) {
	k, err := validateOptionalGTK(nil)
	require.NoError(t, err)
	require.Nil(t, k)

	_, err = validateOptionalGTK(make([]byte, 5))
	require.Error(t, err)

	k, err = validateOptionalGTK(make([]byte, 16))
	require.NoError(t, err)
	require.NotNil(t, k)
}

func TestValidateModeSwitch(t *testing.T) {
	require.NoError(t, validateModeSwitch(ModeSwitchDefault, 0))
	require.Error(t, validateModeSwitch(ModeSwitchDefault, 5))
	require.Error(t, validateModeSwitch(ModeSwitchMAC, 0))
	require.NoError(t, validateModeSwitch(ModeSwitchMAC, 7))
	require.Error(t, validateModeSwitch(ModeSwitchMode(99), 7))
}

type fakeEdfeGate struct{ supports bool }

func (f fakeEdfeGate) SupportsEDFE() bool { return f.supports }

func TestValidateLinkEdfe(t *testing.T) {
	require.Error(t, validateLinkEdfe(EDFEMode(99), true, fakeEdfeGate{true}))
	require.Error(t, validateLinkEdfe(EDFEDefault, false, fakeEdfeGate{true}))
	require.NoError(t, validateLinkEdfe(EDFEDefault, true, fakeEdfeGate{true}))
	require.Error(t, validateLinkEdfe(EDFEEnabled, true, fakeEdfeGate{false}))
	require.NoError(t, validateLinkEdfe(EDFEEnabled, true, fakeEdfeGate{true}))
}
