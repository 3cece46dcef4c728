package hci

import "github.com/btforge/bthost"

// Pair bonds with a remote device. Returns once authentication has
// completed; the bond state change arrives as a notification.
func (h *HCI) Pair(addr bthost.Addr) error {
	return h.pairing.pair(addr)
}

// SetPINResponder installs the legacy pairing PIN callback.
func (h *HCI) SetPINResponder(fn PINResponder) {
	h.pairing.setPINResponder(fn)
}

// SetConfirmResponder installs the numeric comparison callback.
// Installing one advertises DisplayYesNo IO capability; nil reverts
// to NoInputNoOutput with auto-accept.
func (h *HCI) SetConfirmResponder(fn ConfirmResponder) {
	h.pairing.setConfirmResponder(fn)
}

// SetPasskeyResponder installs the passkey entry callback.
func (h *HCI) SetPasskeyResponder(fn PasskeyResponder) {
	h.pairing.setPasskeyResponder(fn)
}

// LocalOOBData returns the Secure Connections out-of-band block to
// hand to a peer over another channel.
func (h *HCI) LocalOOBData() (*OOBData, error) {
	return h.pairing.oobData()
}
