package procedure

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/vaultcore/stronghold/pkg/client"
	"github.com/vaultcore/stronghold/pkg/crypto"
	"github.com/vaultcore/stronghold/pkg/engineerr"
	"github.com/vaultcore/stronghold/pkg/storage"
	"github.com/vaultcore/stronghold/pkg/vault"
)

func newTestClient(t *testing.T) *client.Client {
	t.Helper()
	provider := crypto.NewDefaultProvider()
	idKey := make([]byte, client.IDKeySize)
	if err := provider.Random(idKey); err != nil {
		t.Fatalf("random id key: %v", err)
	}
	var id vault.ClientId
	if err := provider.Random(id[:]); err != nil {
		t.Fatalf("random client id: %v", err)
	}
	c, err := client.New(id, idKey, provider, storage.NewMemStore())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	return c
}

func TestExecuteGenerateKeyWritesTarget(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	loc := vault.NewGenericLocation([]byte("wasp"), []byte("key"))

	if _, err := r.Execute(GenerateKey(Ed25519, loc)); err != nil {
		t.Fatalf("Execute(GenerateKey): %v", err)
	}

	seed, err := c.Vault([]byte("wasp")).Read([]byte("key"))
	if err != nil {
		t.Fatalf("Read written key: %v", err)
	}
	if len(seed) != 32 {
		t.Fatalf("generated key length = %d, want 32", len(seed))
	}
}

func TestEd25519SignVerifyScenario(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	keyLoc := vault.NewGenericLocation([]byte("wasp"), []byte("signing-key"))

	if _, err := r.Execute(GenerateKey(Ed25519, keyLoc)); err != nil {
		t.Fatalf("Execute(GenerateKey): %v", err)
	}

	pubOut, err := r.Execute(PublicKey(keyLoc, Ed25519))
	if err != nil {
		t.Fatalf("Execute(PublicKey): %v", err)
	}
	pub := ed25519.PublicKey(pubOut)
	if len(pub) != ed25519.PublicKeySize {
		t.Fatalf("public key length = %d, want %d", len(pub), ed25519.PublicKeySize)
	}

	msg := []byte("abc")
	sigOut, err := r.Execute(Ed25519Sign(keyLoc, msg))
	if err != nil {
		t.Fatalf("Execute(Ed25519Sign): %v", err)
	}
	if !ed25519.Verify(pub, msg, sigOut) {
		t.Fatal("signature does not verify against the derived public key")
	}
}

func TestExecuteChainedRollsBackOnFailure(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	loc1 := vault.NewGenericLocation([]byte("wasp"), []byte("one"))
	loc2 := vault.NewGenericLocation([]byte("wasp"), []byte("two"))

	failing := Procedure{
		Kind:   KindWriteVault,
		Target: &loc2,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			return nil, nil, errors.New("boom")
		},
	}

	_, err := r.ExecuteChained([]Procedure{
		GenerateKey(Ed25519, loc1),
		failing,
	})
	if err == nil {
		t.Fatal("ExecuteChained succeeded, want error from second procedure")
	}

	exists, existsErr := c.Vault([]byte("wasp")).Exists([]byte("one"))
	if existsErr != nil {
		t.Fatalf("Exists: %v", existsErr)
	}
	if exists {
		t.Fatal("first procedure's target survived chain rollback")
	}
}

func TestExecuteChainedAllSucceed(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	loc1 := vault.NewGenericLocation([]byte("wasp"), []byte("one"))
	loc2 := vault.NewGenericLocation([]byte("wasp"), []byte("two"))

	outs, err := r.ExecuteChained([]Procedure{
		GenerateKey(Ed25519, loc1),
		WriteVault([]byte("fixed"), loc2),
	})
	if err != nil {
		t.Fatalf("ExecuteChained: %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("len(outs) = %d, want 2", len(outs))
	}

	for _, path := range [][]byte{[]byte("one"), []byte("two")} {
		exists, err := c.Vault([]byte("wasp")).Exists(path)
		if err != nil {
			t.Fatalf("Exists(%s): %v", path, err)
		}
		if !exists {
			t.Fatalf("Exists(%s) = false, want true", path)
		}
	}
}

func TestExecuteTargetSourceCollisionRejected(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	loc := vault.NewGenericLocation([]byte("wasp"), []byte("key"))

	if _, err := r.Execute(GenerateKey(Ed25519, loc)); err != nil {
		t.Fatalf("Execute(GenerateKey): %v", err)
	}

	self := Procedure{
		Kind:    KindHmac,
		Sources: []vault.Location{loc},
		Target:  &loc,
		Run: func(provider crypto.Provider, inputs [][]byte) ([]byte, PublicOutput, error) {
			return inputs[0], nil, nil
		},
	}

	_, err := r.Execute(self)
	if err == nil {
		t.Fatal("Execute with colliding source/target succeeded, want error")
	}
	if !errors.Is(err, engineerr.ErrInvalidLocation) {
		t.Fatalf("err = %v, want wrapping ErrInvalidLocation", err)
	}
}

func TestSlip10GenerateDeriveRoundTrip(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	masterLoc := vault.NewGenericLocation([]byte("wasp"), []byte("master"))
	childLoc := vault.NewGenericLocation([]byte("wasp"), []byte("child"))

	if _, err := r.Execute(Slip10Generate(masterLoc)); err != nil {
		t.Fatalf("Execute(Slip10Generate): %v", err)
	}
	if _, err := r.Execute(Slip10Derive(masterLoc, childLoc, []uint32{0})); err != nil {
		t.Fatalf("Execute(Slip10Derive): %v", err)
	}

	child, err := c.Vault([]byte("wasp")).Read([]byte("child"))
	if err != nil {
		t.Fatalf("Read child: %v", err)
	}
	if len(child) != 64 {
		t.Fatalf("child key||chainCode length = %d, want 64", len(child))
	}
}

func TestHmacProcedure(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	keyLoc := vault.NewGenericLocation([]byte("wasp"), []byte("hmac-key"))

	if _, err := r.Execute(GenerateKey(Ed25519, keyLoc)); err != nil {
		t.Fatalf("Execute(GenerateKey): %v", err)
	}

	mac, err := r.Execute(Hmac(keyLoc, []byte("message")))
	if err != nil {
		t.Fatalf("Execute(Hmac): %v", err)
	}
	if len(mac) == 0 {
		t.Fatal("Hmac produced empty mac")
	}
}

func TestExecuteMissingSourceIsProcedureError(t *testing.T) {
	c := newTestClient(t)
	r := New(c)
	missing := vault.NewGenericLocation([]byte("wasp"), []byte("nope"))

	_, err := r.Execute(Hmac(missing, []byte("m")))
	if err == nil {
		t.Fatal("Execute over missing source succeeded, want error")
	}
	var procErr *engineerr.ProcedureError
	if !errors.As(err, &procErr) {
		t.Fatalf("err = %v (%T), want *engineerr.ProcedureError", err, err)
	}
	if procErr.Kind != engineerr.ProcedureErrVaultNotFound {
		t.Fatalf("procErr.Kind = %v, want ProcedureErrVaultNotFound", procErr.Kind)
	}
}
