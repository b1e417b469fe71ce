package main

import (
	"errors"
	"testing"
)

func TestCleanDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{"https://example.com", "example.com"},
		{"http://www.example.com/about/team", "example.com"},
		{"EXAMPLE.COM", "example.com"},
		{"example.com:8080", "example.com"},
		{"https://user@example.com/path", "example.com"},
		{"  example.com  ", "example.com"},
		{"example.com.", "example.com"},
	}
	for _, tt := range tests {
		if got := CleanDomain(tt.in); got != tt.want {
			t.Errorf("CleanDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContactValidate(t *testing.T) {
	valid := Contact{FirstName: "John", LastName: "Doe", Domain: "example.com"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid contact rejected: %v", err)
	}

	fullOnly := Contact{FullName: "Jane Smith", Domain: "https://acme.com"}
	if err := fullOnly.Validate(); err != nil {
		t.Errorf("full-name-only contact rejected: %v", err)
	}

	noName := Contact{Domain: "x.test"}
	if err := noName.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nameless contact: err = %v, want ErrInvalidInput", err)
	}

	badDomain := Contact{FirstName: "John", Domain: "not a domain"}
	if err := badDomain.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("bad domain: err = %v, want ErrInvalidInput", err)
	}

	noTLD := Contact{FirstName: "John", Domain: "localhost"}
	if err := noTLD.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("dotless domain: err = %v, want ErrInvalidInput", err)
	}
}

func TestIsValidDomain(t *testing.T) {
	for _, domain := range []string{"example.com", "mail.example.co.uk", "a-b.example.io"} {
		if !isValidDomain(domain) {
			t.Errorf("%s should be valid", domain)
		}
	}
	for _, domain := range []string{"", "x", "example", "-bad.com", "bad-.com", "exa mple.com", "exa_mple.com"} {
		if isValidDomain(domain) {
			t.Errorf("%s should be invalid", domain)
		}
	}
}

func TestMxResultSortRecords(t *testing.T) {
	m := &MxResult{Records: []MxRecord{
		{Host: "mx2.example.com", Preference: 20},
		{Host: "mx1.example.com", Preference: 10},
		{Host: "mx0.example.com", Preference: 10},
	}}
	m.SortRecords()
	want := []string{"mx0.example.com", "mx1.example.com", "mx2.example.com"}
	for i, host := range want {
		if m.Records[i].Host != host {
			t.Fatalf("records[%d] = %s, want %s", i, m.Records[i].Host, host)
		}
	}
}
