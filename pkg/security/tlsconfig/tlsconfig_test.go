package tlsconfig

import "testing"

func TestClientDisabledReturnsNil(t *testing.T) {
	cfg, err := Options{}.Client()
	if err != nil || cfg != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", cfg, err)
	}
}

func TestClientSkipVerifyWhenNoCAFile(t *testing.T) {
	cfg, err := Options{Enable: true, InsecureSkipVerify: true}.Client()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.InsecureSkipVerify {
		t.Errorf("expected InsecureSkipVerify true")
	}
	if cfg.RootCAs != nil {
		t.Errorf("expected no RootCAs pool without a CAFile")
	}
}

func TestClientMissingCAFileErrors(t *testing.T) {
	if _, err := (Options{Enable: true, CAFile: "/nonexistent/ca.crt"}).Client(); err == nil {
		t.Fatalf("expected error for missing CA file")
	}
}
