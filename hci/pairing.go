package hci

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/btforge/bthost"
	"github.com/btforge/bthost/hci/cmd"
	"github.com/btforge/bthost/hci/evt"
)

// IO capability and authentication requirement values for the IO
// Capability Request Reply [Vol 2, Part E, 7.1.29].
const (
	ioCapDisplayYesNo    = 0x01
	ioCapNoInputNoOutput = 0x03

	authReqGeneralBonding = 0x04
)

// PINResponder supplies a PIN for legacy pairing with a given peer.
// Returning false declines the request.
type PINResponder func(addr bthost.Addr) (string, bool)

// ConfirmResponder answers a numeric comparison request. The default
// accepts everything, matching a no input / no output device.
type ConfirmResponder func(addr bthost.Addr, passkey uint32) bool

// PasskeyResponder supplies a passkey for entry on our side.
type PasskeyResponder func(addr bthost.Addr) (uint32, bool)

// pairing answers the controller's security events: link key lookup,
// legacy PIN requests and Secure Simple Pairing dialogs. Replies run
// off the dispatch goroutine since each is itself a command exchange.
type pairing struct {
	h *HCI

	mu         sync.Mutex
	pinFn      PINResponder
	confirmFn  ConfirmResponder
	passkeyFn  PasskeyResponder
	ioCap      uint8
	oobKeyPair *keyPair
}

func newPairing(h *HCI) *pairing {
	return &pairing{h: h, ioCap: ioCapNoInputNoOutput}
}

func (p *pairing) register() {
	p.h.Handle(evt.LinkKeyRequestCode, p.handleLinkKeyRequest)
	p.h.Handle(evt.LinkKeyNotificationCode, p.handleLinkKeyNotification)
	p.h.Handle(evt.PINCodeRequestCode, p.handlePINCodeRequest)
	p.h.Handle(evt.IOCapabilityRequestCode, p.handleIOCapabilityRequest)
	p.h.Handle(evt.UserConfirmationRequestCode, p.handleUserConfirmationRequest)
	p.h.Handle(evt.UserPasskeyRequestCode, p.handleUserPasskeyRequest)
	p.h.Handle(evt.SimplePairingCompleteCode, p.handleSimplePairingComplete)
}

func (p *pairing) setPINResponder(fn PINResponder) {
	p.mu.Lock()
	p.pinFn = fn
	p.mu.Unlock()
}

func (p *pairing) setConfirmResponder(fn ConfirmResponder) {
	p.mu.Lock()
	p.confirmFn = fn
	if fn != nil {
		p.ioCap = ioCapDisplayYesNo
	} else {
		p.ioCap = ioCapNoInputNoOutput
	}
	p.mu.Unlock()
}

func (p *pairing) setPasskeyResponder(fn PasskeyResponder) {
	p.mu.Lock()
	p.passkeyFn = fn
	p.mu.Unlock()
}

// pair bonds with a peer by forcing authentication on a fresh link.
// The bond itself lands via Link Key Notification; this only drives
// the link through the authentication exchange.
func (p *pairing) pair(addr bthost.Addr) error {
	if p.h.Adapter.State() != bthost.PowerOn {
		return errors.Wrap(bthost.ErrInvalidState, "adapter not enabled")
	}
	if p.h.Registry.bondState(addr) == bthost.Bonded {
		return nil
	}

	p.h.Registry.recordBondState(addr, bthost.Bonding)
	lnk, err := p.h.dialACL(addr)
	if err != nil {
		p.h.Registry.recordBondState(addr, bthost.BondNone)
		return err
	}
	defer lnk.release()

	if err := lnk.secure(); err != nil {
		p.h.Registry.recordBondState(addr, bthost.BondNone)
		return err
	}
	return nil
}

// oobData returns the local Secure Connections out-of-band block,
// generating the key pair on first use.
func (p *pairing) oobData() (*OOBData, error) {
	p.mu.Lock()
	kp := p.oobKeyPair
	p.mu.Unlock()

	if kp == nil {
		var err error
		kp, err = generateKeyPair()
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.oobKeyPair = kp
		p.mu.Unlock()
	}
	return generateOOBData(kp)
}

func (p *pairing) handleLinkKeyRequest(b []byte) error {
	e := evt.LinkKeyRequest(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	key, ok := p.h.Registry.linkKey(addr)
	go func() {
		if ok {
			if err := p.h.Send(&cmd.LinkKeyRequestReply{BDADDR: bd, LinkKey: key}, &cmd.LinkKeyRequestReplyRP{}); err != nil {
				logger.Error("link key reply to ", addr.String(), ": ", err)
			}
			return
		}
		// no key on file: pairing is about to start
		p.h.Registry.recordBondState(addr, bthost.Bonding)
		if err := p.h.Send(&cmd.LinkKeyRequestNegativeReply{BDADDR: bd}, &cmd.LinkKeyRequestNegativeReplyRP{}); err != nil {
			logger.Error("link key negative reply to ", addr.String(), ": ", err)
		}
	}()
	return nil
}

func (p *pairing) handleLinkKeyNotification(b []byte) error {
	e := evt.LinkKeyNotification(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])
	p.h.Registry.storeLinkKey(addr, e.LinkKey(), e.KeyType())
	return nil
}

func (p *pairing) handlePINCodeRequest(b []byte) error {
	e := evt.PINCodeRequest(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	p.mu.Lock()
	fn := p.pinFn
	p.mu.Unlock()

	p.h.notify(bthost.PairingRequest{Addr: addr, Variant: bthost.PairingVariantPIN})

	go func() {
		if fn != nil {
			if pin, ok := fn(addr); ok && len(pin) >= 1 && len(pin) <= 16 {
				c := &cmd.PINCodeRequestReply{BDADDR: bd, PINCodeLength: uint8(len(pin))}
				copy(c.PINCode[:], pin)
				if err := p.h.Send(c, &cmd.PINCodeRequestReplyRP{}); err != nil {
					logger.Error("pin reply to ", addr.String(), ": ", err)
				}
				return
			}
		}
		if err := p.h.Send(&cmd.PINCodeRequestNegativeReply{BDADDR: bd}, nil); err != nil {
			logger.Error("pin negative reply to ", addr.String(), ": ", err)
		}
		// declining the PIN ends the pairing attempt
		p.h.Registry.bondFailed(addr)
	}()
	return nil
}

func (p *pairing) handleIOCapabilityRequest(b []byte) error {
	e := evt.IOCapabilityRequest(b)
	bd := e.Address()

	p.mu.Lock()
	ioCap := p.ioCap
	p.mu.Unlock()

	go func() {
		err := p.h.Send(&cmd.IOCapabilityRequestReply{
			BDADDR:             bd,
			IOCapability:       ioCap,
			OOBDataPresent:     0x00,
			AuthenticationReqs: authReqGeneralBonding,
		}, nil)
		if err != nil {
			logger.Error("io capability reply: ", err)
		}
	}()
	return nil
}

func (p *pairing) handleUserConfirmationRequest(b []byte) error {
	e := evt.UserConfirmationRequest(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])
	passkey := e.NumericValue()

	p.mu.Lock()
	fn := p.confirmFn
	p.mu.Unlock()

	p.h.notify(bthost.PairingRequest{Addr: addr, Variant: bthost.PairingVariantConfirmation, Passkey: passkey})

	go func() {
		accept := true
		if fn != nil {
			accept = fn(addr, passkey)
		}
		var err error
		if accept {
			err = p.h.Send(&cmd.UserConfirmationRequestReply{BDADDR: bd}, nil)
		} else {
			err = p.h.Send(&cmd.UserConfirmationRequestNegativeReply{BDADDR: bd}, nil)
		}
		if err != nil {
			logger.Error("user confirmation reply to ", addr.String(), ": ", err)
		}
	}()
	return nil
}

func (p *pairing) handleUserPasskeyRequest(b []byte) error {
	e := evt.UserPasskeyRequest(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])

	p.mu.Lock()
	fn := p.passkeyFn
	p.mu.Unlock()

	p.h.notify(bthost.PairingRequest{Addr: addr, Variant: bthost.PairingVariantPasskey})

	go func() {
		if fn != nil {
			if pk, ok := fn(addr); ok {
				if err := p.h.Send(&cmd.UserPasskeyRequestReply{BDADDR: bd, NumericValue: pk}, nil); err != nil {
					logger.Error("passkey reply to ", addr.String(), ": ", err)
				}
				return
			}
		}
		if err := p.h.Send(&cmd.UserPasskeyRequestNegativeReply{BDADDR: bd}, nil); err != nil {
			logger.Error("passkey negative reply to ", addr.String(), ": ", err)
		}
	}()
	return nil
}

func (p *pairing) handleSimplePairingComplete(b []byte) error {
	e := evt.SimplePairingComplete(b)
	bd := e.Address()
	addr := bthost.AddrFromLE(bd[:])
	if e.Status() != 0 {
		logger.Debugf("pairing with %v failed: %v", addr, ErrCommand(e.Status()))
		p.h.Registry.recordBondState(addr, bthost.BondNone)
	}
	return nil
}
