package validate

import (
	"errors"
	"testing"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"user@example.com", true},
		{"first.last+tag@sub.example.co.uk", true},
		{"user@", false},
		{"@example.com", false},
		{"user example.com", false},
		{"user@example", false},
		{"user@@example.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := Email(tt.input)
			if tt.ok && err != nil {
				t.Errorf("expected %q to be valid, got %v", tt.input, err)
			}
			if !tt.ok && err == nil {
				t.Errorf("expected %q to be rejected", tt.input)
			}
		})
	}
}

func TestParseExpiryDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"25/02/28", "2025-02-28"},
		{"00/01/01", "2000-01-01"},
		{"49/12/31", "2049-12-31"},
		{"50/01/01", "1950-01-01"},
		{"99/06/15", "1999-06-15"},
		{"2031/3/9", "2031-03-09"},
		{"28/02/29", "2028-02-29"},
		{" 30/10/19 ", "2030-10-19"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ExpiryISO(tt.input)
			if err != nil {
				t.Fatalf("expected %q to parse, got %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	rejected := []string{
		"25/02/30",
		"27/02/29",
		"25/13/01",
		"25/00/10",
		"25/04/31",
		"25-02-28",
		"125/02/28",
		"25/02",
		"aa/bb/cc",
		"25/002/01",
		"+5/+2/+8",
		"25/-1/01",
		"25/ 2/01",
	}
	for _, input := range rejected {
		t.Run("rejects "+input, func(t *testing.T) {
			_, err := ParseExpiryDate(input)
			var fe *FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError for %q, got %v", input, err)
			}
			if fe.Field != "expires_at" {
				t.Errorf("expected field expires_at, got %s", fe.Field)
			}
		})
	}

	t.Run("empty input is no expiry", func(t *testing.T) {
		got, err := ExpiryISO("")
		if err != nil || got != "" {
			t.Errorf("expected empty result, got %q, %v", got, err)
		}
	})
}

func TestExpandYear(t *testing.T) {
	for yy := 0; yy < 100; yy++ {
		got := ExpandYear(yy, 2)
		want := 1900 + yy
		if yy < 50 {
			want = 2000 + yy
		}
		if got != want {
			t.Errorf("expected %d for %02d, got %d", want, yy, got)
		}
	}
	if got := ExpandYear(2031, 4); got != 2031 {
		t.Errorf("expected four-digit years to pass through, got %d", got)
	}
}

func TestMaxDownloads(t *testing.T) {
	if n, err := MaxDownloads(""); n != nil || err != nil {
		t.Errorf("expected unlimited, got %v, %v", n, err)
	}
	if n, err := MaxDownloads("5"); err != nil || n == nil || *n != 5 {
		t.Errorf("expected 5, got %v, %v", n, err)
	}
	for _, bad := range []string{"0", "-1", "abc", "1.5"} {
		if _, err := MaxDownloads(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestCode(t *testing.T) {
	if err := Code("123456"); err != nil {
		t.Errorf("expected valid code, got %v", err)
	}
	for _, bad := range []string{"12345", "1234567", "12a456", ""} {
		if err := Code(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestErrors(t *testing.T) {
	var errs Errors
	errs.Add("email", nil)
	if errs.Err() != nil {
		t.Fatal("expected no error when nothing was added")
	}
	errs.Add("email", Email("nope"))
	errs.Add("password", errors.New("too short"))
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(errs))
	}
	if errs[1].Field != "password" {
		t.Errorf("expected plain errors to be attributed to the field, got %s", errs[1].Field)
	}
	if errs.Err() == nil {
		t.Error("expected non-nil error")
	}
}
