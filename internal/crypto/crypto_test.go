package crypto_test

import (
	"bytes"
	"testing"

	"github.com/ziesha/core/internal/crypto"
)

func TestSignatureScheme(t *testing.T) {
	kp, err := crypto.NewKeyPair([]byte("seed"))
	if err != nil {
		t.Fatalf("key derivation failed: %v", err)
	}
	msg := []byte("hello world")
	sig, err := kp.Sign(msg)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	pub := kp.PublicBytes()
	if !crypto.VerifySignature(pub[:], msg, sig) {
		t.Fatal("signature must verify under its own key")
	}
	if crypto.VerifySignature(pub[:], []byte("other"), sig) {
		t.Fatal("signature must not verify for another message")
	}

	other, _ := crypto.NewKeyPair([]byte("other seed"))
	otherPub := other.PublicBytes()
	if crypto.VerifySignature(otherPub[:], msg, sig) {
		t.Fatal("signature must not verify under another key")
	}

	// Key derivation and signing are deterministic.
	again, _ := crypto.NewKeyPair([]byte("seed"))
	againPub := again.PublicBytes()
	if pub != againPub {
		t.Fatal("the same seed must derive the same key")
	}
	sig2, _ := again.Sign(msg)
	if !bytes.Equal(sig, sig2) {
		t.Fatal("signing must be deterministic")
	}
}

func TestVRF(t *testing.T) {
	kp := crypto.NewVRFKeyPair([]byte("seed"))
	input := []byte("epoch-0-slot-3")

	out1, proof1 := kp.Evaluate(input)
	out2, proof2 := kp.Evaluate(input)
	if out1 != out2 || !bytes.Equal(proof1, proof2) {
		t.Fatal("VRF evaluation must be deterministic")
	}
	if !crypto.VRFVerify(kp.PublicBytes(), input, out1, proof1) {
		t.Fatal("VRF output must verify")
	}
	if crypto.VRFVerify(kp.PublicBytes(), []byte("other input"), out1, proof1) {
		t.Fatal("VRF output must not verify for another input")
	}
	other := crypto.NewVRFKeyPair([]byte("other"))
	if crypto.VRFVerify(other.PublicBytes(), input, out1, proof1) {
		t.Fatal("VRF output must not verify under another key")
	}

	out3, _ := kp.Evaluate([]byte("epoch-0-slot-4"))
	if out1 == out3 {
		t.Fatal("different inputs must give different outputs")
	}
}
