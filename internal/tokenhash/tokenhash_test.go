package tokenhash

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, salt, err := Hash("s3cr3t-token")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if len(hash) == 0 || len(salt) == 0 {
		t.Fatal("expected non-empty hash and salt")
	}

	if !Verify("s3cr3t-token", hash, salt) {
		t.Fatal("expected verify to succeed for the correct token")
	}
	if Verify("wrong-token", hash, salt) {
		t.Fatal("expected verify to fail for a wrong token")
	}
}

func TestHashProducesDistinctSalts(t *testing.T) {
	hash1, salt1, _ := Hash("same-token")
	hash2, salt2, _ := Hash("same-token")

	if string(salt1) == string(salt2) {
		t.Fatal("expected distinct random salts across calls")
	}
	if string(hash1) == string(hash2) {
		t.Fatal("expected distinct hashes given distinct salts")
	}
}
