package reset_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/skyward-school/skyward/internal/krypto"
	"github.com/skyward-school/skyward/internal/reset"
)

func Test_GenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		code, err := reset.GenerateCode()
		if err != nil {
			t.Fatalf("failed to generate code: %v", err)
		}

		plain := code.Plain()
		if len(plain) != 6 {
			t.Fatalf("expected 6 digits, got %q", plain)
		}

		n, err := strconv.Atoi(plain)
		if err != nil || n < 100000 || n > 999999 {
			t.Fatalf("code %q out of range", plain)
		}

		seen[plain] = struct{}{}
	}

	// 1000 draws out of 900000 values, a handful of duplicates at most.
	if len(seen) < 990 {
		t.Errorf("expected codes to be random, got %d distinct codes", len(seen))
	}
}

func Test_ParseCode(t *testing.T) {
	valid := map[string]struct {
		raw  string
		want string
	}{
		"ok, six digits":        {raw: "123456", want: "123456"},
		"ok, surrounding space": {raw: " 123456\n", want: "123456"},
		"ok, other shape":       {raw: "abc", want: "abc"},
	}

	for name, tc := range valid {
		t.Run(name, func(t *testing.T) {
			var code reset.Code
			err := code.UnmarshalText([]byte(tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if code.Plain() != tc.want {
				t.Errorf("got %q want %q", code.Plain(), tc.want)
			}
		})
	}

	invalid := map[string]string{
		"empty":       "",
		"only spaces": "   ",
		"too long":    strings.Repeat("1", 65),
	}

	for name, raw := range invalid {
		t.Run("fail, "+name, func(t *testing.T) {
			_, err := reset.ParseCode(raw)
			if !errors.Is(err, reset.ErrInvalidCode) {
				t.Errorf("expected error %v, got %v (via errors.Is)", reset.ErrInvalidCode, err)
			}
		})
	}
}

func Test_Code_PreventExposure(t *testing.T) {
	code := must(reset.ParseCode("123456"))

	for _, s := range []string{
		fmt.Sprintf("%s", code), //nolint:gosimple
		fmt.Sprintf("%v", code),
		fmt.Sprintf("%#v", code),
		string(must(code.MarshalText())),
	} {
		if s != krypto.SecretMarker {
			t.Errorf("wanted\n%s\ngot\n%s\n", krypto.SecretMarker, s)
		}
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("issued code", "code", code)

	if strings.Contains(buf.String(), "123456") {
		t.Errorf("log output\n%s\ncontains the code", buf.String())
	}
}

func Test_Hasher(t *testing.T) {
	code := must(reset.ParseCode("123456"))
	other := must(reset.ParseCode("654321"))

	t.Run("ok, unkeyed digest is sha256 hex", func(t *testing.T) {
		h := reset.NewHasher()

		// echo -n 123456 | sha256sum
		want := reset.Digest("8d969eef6ecad3c29a3a629280e686cf0c3f5d5a86aff3ca12020c923adc6c92")
		if got := h.Hash(code); got != want {
			t.Errorf("got %s want %s", got, want)
		}

		if !h.Verify(code, want) {
			t.Errorf("expected code to verify")
		}

		if h.Verify(other, want) {
			t.Errorf("expected other code not to verify")
		}
	})

	t.Run("ok, keyed digests depend on the key", func(t *testing.T) {
		k1 := must(krypto.ParseKey("568554094ec040ab8a6b3e6d7cc138b0dc855f39ba1aeb2ffc903f7260b3a452"))
		k2 := must(krypto.ParseKey("d503685b5e0848dcd1026711a5d92e8a087dfaffa489fb563e0de73db2f2476c"))

		h1 := reset.NewKeyedHasher(k1)
		h2 := reset.NewKeyedHasher(k2)

		if h1.Hash(code) != h1.Hash(code) {
			t.Errorf("expected digests to be deterministic")
		}

		if h1.Hash(code) == h2.Hash(code) || h1.Hash(code) == reset.NewHasher().Hash(code) {
			t.Errorf("expected digests to differ per key")
		}

		if !h1.Verify(code, h1.Hash(code)) || h2.Verify(code, h1.Hash(code)) {
			t.Errorf("expected digests to only verify with their own key")
		}
	})
}
